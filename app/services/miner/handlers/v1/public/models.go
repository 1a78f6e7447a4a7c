package public

// SubmitAnns is the payload for submitting a batch of announcements that
// share the same classification.
type SubmitAnns struct {
	BlockHeight uint32   `json:"block_height" validate:"required"`
	Work        uint32   `json:"work" validate:"required"`
	Anns        []string `json:"anns" validate:"required,min=1,dive,required"`
}

// SubmitResult reports how much of a submitted batch was absorbed.
type SubmitResult struct {
	Accepted int    `json:"accepted"`
	Dropped  int    `json:"dropped"`
	Status   string `json:"status"`
}
