package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"colabcanvas/internal/middleware"
	"colabcanvas/internal/models"
	"colabcanvas/internal/openai"

	"go.opentelemetry.io/otel/attribute"
)

/*
LEARNING: CANVAS ASSISTANT

Turns a natural-language prompt ("add three yellow sticky notes for our
retro columns") into concrete canvas objects.

Flow:
  User Prompt
    ↓
  Chat Completion constrained to a JSON shape plan
    ↓
  Validate kinds + filter props against per-kind schemas
    ↓
  Insert objects, stacked above the room's current top
*/

// ObjectWriter is what the assistant needs from the persistence layer.
// Learning: Interface declared at point of USE, not implementation.
type ObjectWriter interface {
	Insert(ctx context.Context, obj *models.CanvasObject) error
	ListObjects(ctx context.Context, roomID string) ([]*models.CanvasObject, error)
}

// AssistantService turns drawing prompts into canvas objects
type AssistantService struct {
	openaiClient *openai.Client
	objects      ObjectWriter
}

// NewAssistantService creates a new assistant service
func NewAssistantService(openaiClient *openai.Client, objects ObjectWriter) *AssistantService {
	return &AssistantService{
		openaiClient: openaiClient,
		objects:      objects,
	}
}

// shapePlan is the JSON contract the model is asked to produce.
type shapePlan struct {
	Kind  models.ObjectKind `json:"kind"`
	Props map[string]any    `json:"props"`
}

const planSystemPrompt = `You are a canvas drawing planner. Reply with ONLY a JSON array of shapes.
Each shape: {"kind": one of "rect","circle","line","text","sticky", "props": {...}}.
Props use canvas coordinates: left, top, width, height, plus per-kind fields
(rect: rx, ry; circle: radius; line: x1, y1, x2, y2; text/sticky: text, fontSize).
Colors go in "fill" and "stroke" as hex strings. No prose, no markdown fences.`

// CreateFromPrompt asks the model for a shape plan and materializes it in the
// room as the given user. Returns the created objects in insertion order.
func (s *AssistantService) CreateFromPrompt(ctx context.Context, roomID, userID, prompt string) ([]*models.CanvasObject, error) {
	ctx, span := middleware.StartSpan(ctx, "Assistant.CreateFromPrompt",
		attribute.String("room.id", roomID),
		attribute.String("user.id", userID),
	)
	defer span.End()

	reply, err := s.openaiClient.ChatCompletion(ctx, []openai.ChatMessage{
		{Role: "system", Content: planSystemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, fmt.Errorf("failed to plan shapes: %w", err)
	}

	plans, err := parseShapePlan(reply)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, err
	}
	if len(plans) == 0 {
		return nil, fmt.Errorf("the prompt produced no shapes")
	}

	// New objects stack above everything already in the room.
	existing, err := s.objects.ListObjects(ctx, roomID)
	if err != nil {
		middleware.AddSpanError(ctx, err)
		return nil, fmt.Errorf("failed to read room %s: %w", roomID, err)
	}
	nextZ := 0
	for _, obj := range existing {
		if obj.ZOrder >= nextZ {
			nextZ = obj.ZOrder + 1
		}
	}

	created := make([]*models.CanvasObject, 0, len(plans))
	for _, plan := range plans {
		if !models.ValidKind(plan.Kind) {
			continue // the model invented a kind; skip it
		}
		obj := &models.CanvasObject{
			RoomID:    roomID,
			Kind:      plan.Kind,
			Props:     models.FilterProps(plan.Kind, plan.Props),
			ZOrder:    nextZ,
			CreatedBy: userID,
			UpdatedBy: userID,
		}
		if err := s.objects.Insert(ctx, obj); err != nil {
			middleware.AddSpanError(ctx, err)
			return created, fmt.Errorf("failed to insert planned %s: %w", plan.Kind, err)
		}
		created = append(created, obj)
		nextZ++
	}

	if len(created) == 0 {
		return nil, fmt.Errorf("the plan contained no valid shapes")
	}
	return created, nil
}

// parseShapePlan decodes the model reply, tolerating the markdown fences
// models sometimes add despite instructions.
func parseShapePlan(reply string) ([]shapePlan, error) {
	cleaned := strings.TrimSpace(reply)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var plans []shapePlan
	if err := json.Unmarshal([]byte(cleaned), &plans); err != nil {
		return nil, fmt.Errorf("model reply is not a shape plan: %w", err)
	}
	return plans, nil
}
