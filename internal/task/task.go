// Package task defines the core solve-task domain model shared by the
// engine, store, and API layers. It contains the task descriptor, the
// result envelope returned to pollers, and serialization helpers.
package task

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type (
	Status string

	Metadata struct {
		Action string `json:"action,omitempty"`
		CData  string `json:"cdata,omitempty"`
	}

	Task struct {
		ID         string    `json:"id"`
		Type       string    `json:"type"`
		WebsiteURL string    `json:"websiteURL"`
		WebsiteKey string    `json:"websiteKey"`
		Metadata   *Metadata `json:"metadata,omitempty"`
		CreatedAt  time.Time `json:"-"`
	}

	Solution struct {
		Token string `json:"token"`
		Type  string `json:"type"`
	}

	Result struct {
		TaskID           string    `json:"taskId,omitempty"`
		Status           Status    `json:"status"`
		ErrorID          int       `json:"errorId"`
		ErrorDescription string    `json:"errorDescription,omitempty"`
		Solution         *Solution `json:"solution,omitempty"`
		CreatedAt        time.Time `json:"-"`
	}
)

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusReady      Status = "ready"
	StatusError      Status = "error"
)

// TypeTurnstile is the only captcha type the gateway currently solves.
const TypeTurnstile = "AntiTurnstileTaskProxyLess"

func New(taskType, websiteURL, websiteKey string) *Task {
	return &Task{
		ID:         uuid.New().String(),
		Type:       taskType,
		WebsiteURL: websiteURL,
		WebsiteKey: websiteKey,
		CreatedAt:  time.Now(),
	}
}

// Ready builds a successful result carrying the solved token.
func Ready(taskID, token, taskType string) *Result {
	return &Result{
		TaskID:    taskID,
		Status:    StatusReady,
		Solution:  &Solution{Token: token, Type: taskType},
		CreatedAt: time.Now(),
	}
}

// Failed builds an error result. ErrorID is always 1 on failure.
func Failed(taskID, description string) *Result {
	return &Result{
		TaskID:           taskID,
		Status:           StatusError,
		ErrorID:          1,
		ErrorDescription: description,
		CreatedAt:        time.Now(),
	}
}

func (t *Task) ToJSON() (string, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func FromJSON(data string) (*Task, error) {
	var t Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, err
	}

	return &t, nil
}

func (r *Result) ToJSON() (string, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func ResultFromJSON(data string) (*Result, error) {
	var r Result
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, err
	}

	return &r, nil
}
