// Package crm records booked leads as cards in a Pipefy pipe.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEndpoint = "https://api.pipefy.com/graphql"
	defaultPhaseID  = "340736206"
	requestTimeout  = 10 * time.Second
)

// ErrNotConfigured is returned when the token or pipe ID is missing.
var ErrNotConfigured = errors.New("crm: pipefy credentials not configured")

// Client is a Pipefy GraphQL client. All user data travels in GraphQL
// variables, never inside the query text.
type Client struct {
	http     *http.Client
	endpoint string
	token    string
	pipeID   string
	phaseID  string
}

// Option configures a Client.
type Option func(*Client)

// WithEndpoint overrides the GraphQL endpoint.
func WithEndpoint(url string) Option {
	return func(c *Client) { c.endpoint = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithPhase sets the phase new cards are created in.
func WithPhase(phaseID string) Option {
	return func(c *Client) {
		if phaseID != "" {
			c.phaseID = phaseID
		}
	}
}

// New creates a Pipefy client for one pipe.
func New(token, pipeID string, opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: requestTimeout},
		endpoint: defaultEndpoint,
		token:    token,
		pipeID:   pipeID,
		phaseID:  defaultPhaseID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Card is a created Pipefy card.
type Card struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// FieldValue fills one custom field of a card.
type FieldValue struct {
	FieldID string `json:"field_id"`
	Value   string `json:"field_value"`
}

// CardInput describes a card to create.
type CardInput struct {
	Title  string
	Fields []FieldValue
}

const createCardMutation = `mutation CreateCard($input: CreateCardInput!) {
  createCard(input: $input) { card { id title url } }
}`

// CreateCard creates a card in the configured pipe and phase.
func (c *Client) CreateCard(ctx context.Context, in CardInput) (*Card, error) {
	input := map[string]any{
		"pipe_id":  c.pipeID,
		"phase_id": c.phaseID,
		"title":    in.Title,
	}
	if len(in.Fields) > 0 {
		input["fields_attributes"] = in.Fields
	}

	var data struct {
		CreateCard struct {
			Card Card `json:"card"`
		} `json:"createCard"`
	}
	if err := c.do(ctx, createCardMutation, map[string]any{"input": input}, &data); err != nil {
		return nil, fmt.Errorf("crm: create card: %w", err)
	}
	if data.CreateCard.Card.ID == "" {
		return nil, fmt.Errorf("crm: create card: empty card in response")
	}
	return &data.CreateCard.Card, nil
}

const createCommentMutation = `mutation CreateComment($input: CreateCommentInput!) {
  createComment(input: $input) { comment { id } }
}`

// AddComment posts text on a card and returns the comment ID.
func (c *Client) AddComment(ctx context.Context, cardID, text string) (string, error) {
	var data struct {
		CreateComment struct {
			Comment struct {
				ID string `json:"id"`
			} `json:"comment"`
		} `json:"createComment"`
	}
	vars := map[string]any{"input": map[string]any{"card_id": cardID, "text": text}}
	if err := c.do(ctx, createCommentMutation, vars, &data); err != nil {
		return "", fmt.Errorf("crm: add comment: %w", err)
	}
	return data.CreateComment.Comment.ID, nil
}

const moveCardMutation = `mutation MoveCard($input: MoveCardToPhaseInput!) {
  moveCardToPhase(input: $input) { card { id } }
}`

// MoveCard moves a card to another phase.
func (c *Client) MoveCard(ctx context.Context, cardID, phaseID string) error {
	vars := map[string]any{"input": map[string]any{"card_id": cardID, "destination_phase_id": phaseID}}
	var data json.RawMessage
	if err := c.do(ctx, moveCardMutation, vars, &data); err != nil {
		return fmt.Errorf("crm: move card: %w", err)
	}
	return nil
}

// Phase is a pipe phase with its custom fields.
type Phase struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// Field is a custom card field.
type Field struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

const pipeFieldsQuery = `query PipeFields($id: ID!) {
  pipe(id: $id) { phases { id name fields { id label type } } }
}`

// PipeFields lists the phases of the pipe and their fields, used to find
// the IDs needed for card field mappings.
func (c *Client) PipeFields(ctx context.Context) ([]Phase, error) {
	var data struct {
		Pipe struct {
			Phases []Phase `json:"phases"`
		} `json:"pipe"`
	}
	if err := c.do(ctx, pipeFieldsQuery, map[string]any{"id": c.pipeID}, &data); err != nil {
		return nil, fmt.Errorf("crm: pipe fields: %w", err)
	}
	return data.Pipe.Phases, nil
}

// GraphQLError is one entry of the errors array of a response.
type GraphQLError struct {
	Message string `json:"message"`
}

// GraphQLErrors is returned when the response carries an errors array.
type GraphQLErrors []GraphQLError

func (e GraphQLErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ge := range e {
		msgs[i] = ge.Message
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors GraphQLErrors   `json:"errors"`
}

func (c *Client) do(ctx context.Context, query string, vars map[string]any, out any) error {
	if c.token == "" || c.pipeID == "" {
		return ErrNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("http status %d: %s", resp.StatusCode, string(body))
	}

	var gr graphqlResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if len(gr.Errors) > 0 {
		return gr.Errors
	}
	if len(gr.Data) == 0 || string(gr.Data) == "null" {
		return fmt.Errorf("response has no data")
	}
	return json.Unmarshal(gr.Data, out)
}
