package dtos

type PairingCodeDTO struct {
	State       string `json:"state"`
	PairingCode string `json:"pairing_code,omitempty"`
	Ready       bool   `json:"ready"`
}

type QueueStatusDTO struct {
	Queued      int `json:"queued"`
	Active      int `json:"active"`
	Concurrency int `json:"concurrency"`
}
