package models

// Requests for the alert and stream HTTP endpoints.

type CreateAlertRequest struct {
	InstrumentID string `json:"instrument_id" validate:"required"`
	Threshold    string `json:"threshold" validate:"required,numeric"`
	Type         string `json:"type" default:"above" validate:"oneof=above below"`
	Owner        string `json:"owner" validate:"required,max=128"`
}

type ListAlertsRequest struct {
	Owner string `query:"owner" json:"owner" validate:"max=128"`
}

type AlertIDRequest struct {
	ID    string `param:"id" validate:"required"`
	Owner string `query:"owner" validate:"max=128"`
}

type ToggleAlertRequest struct {
	ID      string `param:"id" validate:"required"`
	Owner   string `json:"owner" validate:"max=128"`
	Enabled *bool  `json:"enabled" validate:"required"`
}

type StreamRequest struct {
	Owner       string `query:"owner" validate:"max=128"`
	Instruments string `query:"instruments"`
	Kinds       string `query:"kinds"`
}

type OutcomesRequest struct {
	Instrument string `query:"instrument"`
	Since      string `query:"since"`
	Limit      int    `query:"limit" default:"100" validate:"gte=1,lte=1000"`
}
