package server

import (
	v "github.com/go-ozzo/ozzo-validation/v4"
)

// StartWorkflowBody is the POST /api/workflows request payload.
type StartWorkflowBody struct {
	Accounts  []string `json:"accounts"`
	Platforms []string `json:"platforms"`
	MaxItems  int      `json:"max_items,omitempty"`
}

// Validate checks the shape of the request; platform membership is enforced
// by the orchestrator against its configured set.
func (b StartWorkflowBody) Validate() error {
	return v.ValidateStruct(&b,
		v.Field(&b.Accounts, v.Required, v.Length(1, 50), v.Each(v.Required)),
		v.Field(&b.Platforms, v.Required, v.Length(1, 10), v.Each(v.Required)),
		v.Field(&b.MaxItems, v.Min(0), v.Max(100)),
	)
}
