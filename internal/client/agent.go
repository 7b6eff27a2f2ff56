// Package client holds the REST collaborators the orchestration core
// consumes: the upstream agent backend and the layout persistence
// service. Neither owns state the core reasons about.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/workbenchd/workbench/internal/domain/conversation"
	"github.com/workbenchd/workbench/internal/infrastructure/resilience"
)

// Agent talks to the upstream agent backend. All fetches go through a
// circuit breaker so a flapping backend sheds poll load instead of
// stacking timeouts.
type Agent struct {
	http    *resty.Client
	breaker *resilience.Breaker
}

// NewAgent creates an agent client for the given base URL.
func NewAgent(baseURL string, timeout time.Duration) *Agent {
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")

	return &Agent{
		http: httpClient,
		breaker: resilience.New("agent", resilience.Settings{
			TripAfter: 5,
			Cooldown:  15 * time.Second,
			MaxProbes: 2,
		}),
	}
}

// BreakerState exposes the breaker for health reporting.
func (a *Agent) BreakerState() resilience.State {
	return a.breaker.State()
}

type conversationDTO struct {
	AccountID         string    `json:"accountId"`
	SessionID         string    `json:"sessionId"`
	ProjectID         string    `json:"projectId"`
	Status            string    `json:"status"`
	StreamingID       string    `json:"streamingId"`
	MessageCount      int       `json:"messageCount"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
	LastPromptAt      time.Time `json:"lastPromptAt"`
	PendingPermission bool      `json:"pendingPermission"`
	PendingPlan       bool      `json:"pendingPlan"`
	PendingQuestion   bool      `json:"pendingQuestion"`
}

func (d conversationDTO) snapshot() conversation.Snapshot {
	return conversation.Snapshot{
		Key:               conversation.Key{AccountID: d.AccountID, SessionID: d.SessionID},
		ProjectID:         d.ProjectID,
		Status:            conversation.Status(d.Status),
		StreamingID:       d.StreamingID,
		Messages:          d.MessageCount,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
		LastPromptAt:      d.LastPromptAt,
		PendingPermission: d.PendingPermission,
		PendingPlan:       d.PendingPlan,
		PendingQuestion:   d.PendingQuestion,
	}
}

// Conversations lists conversations, optionally filtered by project.
func (a *Agent) Conversations(ctx context.Context, projectID string) ([]conversation.Snapshot, error) {
	var dtos []conversationDTO
	err := a.breaker.Do(func() error {
		req := a.http.R().SetContext(ctx).SetResult(&dtos)
		if projectID != "" {
			req.SetQueryParam("project", projectID)
		}
		return expectOK(req.Get("/conversations"))
	})
	if err != nil {
		return nil, err
	}
	out := make([]conversation.Snapshot, len(dtos))
	for i, d := range dtos {
		out[i] = d.snapshot()
	}
	return out, nil
}

// Detail fetches one conversation with its tail artifacts.
func (a *Agent) Detail(ctx context.Context, key conversation.Key, tailCount int) (conversation.Snapshot, error) {
	var dto conversationDTO
	err := a.breaker.Do(func() error {
		return expectOK(a.http.R().
			SetContext(ctx).
			SetResult(&dto).
			SetQueryParam("tail", fmt.Sprintf("%d", tailCount)).
			SetPathParams(map[string]string{"account": key.AccountID, "session": key.SessionID}).
			Get("/accounts/{account}/conversations/{session}"))
	})
	if err != nil {
		return conversation.Snapshot{}, err
	}
	return dto.snapshot(), nil
}

// SendMessage submits a prompt to a conversation.
func (a *Agent) SendMessage(ctx context.Context, key conversation.Key, text string) error {
	return a.breaker.Do(func() error {
		return expectOK(a.http.R().
			SetContext(ctx).
			SetBody(map[string]string{"text": text}).
			SetPathParams(map[string]string{"account": key.AccountID, "session": key.SessionID}).
			Post("/accounts/{account}/conversations/{session}/messages"))
	})
}

// Stop interrupts a streaming response.
func (a *Agent) Stop(ctx context.Context, key conversation.Key) error {
	return a.breaker.Do(func() error {
		return expectOK(a.http.R().
			SetContext(ctx).
			SetPathParams(map[string]string{"account": key.AccountID, "session": key.SessionID}).
			Post("/accounts/{account}/conversations/{session}/stop"))
	})
}

// SetCustomName writes the user-assigned subject. Idempotent PUT keyed by
// session.
func (a *Agent) SetCustomName(ctx context.Context, key conversation.Key, name string) error {
	return a.breaker.Do(func() error {
		return expectOK(a.http.R().
			SetContext(ctx).
			SetBody(map[string]string{"name": name}).
			SetPathParams(map[string]string{"account": key.AccountID, "session": key.SessionID}).
			Put("/accounts/{account}/conversations/{session}/name"))
	})
}

// SetManualFinished writes the user's terminal flag. Idempotent PUT.
func (a *Agent) SetManualFinished(ctx context.Context, key conversation.Key, finished bool) error {
	return a.breaker.Do(func() error {
		return expectOK(a.http.R().
			SetContext(ctx).
			SetBody(map[string]bool{"finished": finished}).
			SetPathParams(map[string]string{"account": key.AccountID, "session": key.SessionID}).
			Put("/accounts/{account}/conversations/{session}/finished"))
	})
}

// Delete removes a conversation and its backing log.
func (a *Agent) Delete(ctx context.Context, key conversation.Key) error {
	return a.breaker.Do(func() error {
		return expectOK(a.http.R().
			SetContext(ctx).
			SetPathParams(map[string]string{"account": key.AccountID, "session": key.SessionID}).
			Delete("/accounts/{account}/conversations/{session}"))
	})
}

// Permission is one pending permission request upstream.
type Permission struct {
	ID        string    `json:"id"`
	AccountID string    `json:"accountId"`
	SessionID string    `json:"sessionId"`
	Tool      string    `json:"tool"`
	Summary   string    `json:"summary"`
	CreatedAt time.Time `json:"createdAt"`
}

// Permissions lists pending permission requests, optionally scoped to one
// conversation.
func (a *Agent) Permissions(ctx context.Context, key *conversation.Key) ([]Permission, error) {
	var perms []Permission
	err := a.breaker.Do(func() error {
		req := a.http.R().SetContext(ctx).SetResult(&perms)
		if key != nil {
			req.SetQueryParam("account", key.AccountID)
			req.SetQueryParam("session", key.SessionID)
		}
		return expectOK(req.Get("/permissions"))
	})
	if err != nil {
		return nil, err
	}
	return perms, nil
}

// PermissionDecision approves or denies a pending permission request.
func (a *Agent) PermissionDecision(ctx context.Context, permissionID string, approve bool) error {
	return a.breaker.Do(func() error {
		return expectOK(a.http.R().
			SetContext(ctx).
			SetBody(map[string]bool{"approve": approve}).
			SetPathParam("permission", permissionID).
			Post("/permissions/{permission}/decision"))
	})
}

func expectOK(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("agent backend: %s %s: %s", resp.Request.Method, resp.Request.URL, resp.Status())
	}
	return nil
}
