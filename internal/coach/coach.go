// Package coach turns the generation service into the operations the
// conversation engine needs: opening lines, coach replies, profile and
// change-set extraction, and program documents.
package coach

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/fitcoach/internal/models"
	"github.com/yoockh/fitcoach/internal/providers/llm"
	"github.com/yoockh/fitcoach/internal/utils"
)

// Reply is one assistant turn. Complete is the out-of-band completion
// signal; Text never contains the sentinel.
type Reply struct {
	Text     string
	Complete bool
}

type Generator interface {
	Opening(ctx context.Context, flow models.Flow, profile map[string]any) (string, error)
	Reply(ctx context.Context, flow models.Flow, transcript []models.Turn, profile map[string]any) (*Reply, error)
	ExtractProfile(ctx context.Context, transcript []models.Turn) (map[string]any, error)
	ExtractChanges(ctx context.Context, transcript []models.Turn, profile map[string]any) (*models.ChangeSet, error)
	GenerateProgram(ctx context.Context, kind models.ProgramKind, profile map[string]any) (map[string]any, error)
}

type Coach struct {
	llm     llm.Provider
	timeout time.Duration
	log     logrus.FieldLogger
}

func New(p llm.Provider, timeout time.Duration, log logrus.FieldLogger) *Coach {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Coach{llm: p, timeout: timeout, log: log}
}

func (c *Coach) Opening(ctx context.Context, flow models.Flow, profile map[string]any) (string, error) {
	const op = "Coach.Opening"

	if flow == models.FlowIntake {
		return StarterMessage, nil
	}

	text, err := c.complete(ctx, op, llm.CompletionRequest{
		System:    updateSystemPrompt(profile),
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: updateOpener}},
		MaxTokens: 512,
	})
	if err != nil {
		return "", err
	}
	text, _ = StripSentinel(flow, text)
	if text == "" {
		return "", utils.E(utils.CodeUnavailable, op, "generation service returned an empty opening", nil)
	}
	return text, nil
}

func (c *Coach) Reply(ctx context.Context, flow models.Flow, transcript []models.Turn, profile map[string]any) (*Reply, error) {
	const op = "Coach.Reply"

	req := llm.CompletionRequest{MaxTokens: 1024, Messages: toMessages(transcript)}
	opener := intakeOpener
	if flow == models.FlowProfileUpdate {
		req.System = updateSystemPrompt(profile)
		opener = updateOpener
	} else {
		req.System = intakeSystemPrompt
	}
	if len(req.Messages) == 0 || req.Messages[0].Role == llm.RoleAssistant {
		req.Messages = append([]llm.Message{{Role: llm.RoleUser, Content: opener}}, req.Messages...)
	}

	text, err := c.complete(ctx, op, req)
	if err != nil {
		return nil, err
	}
	text, done := StripSentinel(flow, text)
	return &Reply{Text: text, Complete: done}, nil
}

// ExtractProfile returns the intake profile. Sections the conversation never
// touched are present as null so readers always see the same top level.
func (c *Coach) ExtractProfile(ctx context.Context, transcript []models.Turn) (map[string]any, error) {
	const op = "Coach.ExtractProfile"

	text, err := c.complete(ctx, op, llm.CompletionRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: extractProfilePrompt(transcript)}},
		MaxTokens: 2048,
		JSONMode:  true,
	})
	if err != nil {
		return nil, err
	}

	doc, err := ParseObject(text)
	if err != nil {
		c.log.WithError(err).Warn("profile extraction returned no usable json")
		return nil, utils.E(utils.CodeExtractionFailed, op, "failed to extract structured data from conversation", err)
	}
	return NormalizeProfile(doc), nil
}

func (c *Coach) ExtractChanges(ctx context.Context, transcript []models.Turn, profile map[string]any) (*models.ChangeSet, error) {
	const op = "Coach.ExtractChanges"

	text, err := c.complete(ctx, op, llm.CompletionRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: extractChangesPrompt(transcript, profile)}},
		MaxTokens: 2048,
		JSONMode:  true,
	})
	if err != nil {
		return nil, err
	}

	cs, err := ParseChangeSet(text)
	if err != nil {
		c.log.WithError(err).Warn("change extraction returned no usable json")
		return nil, utils.E(utils.CodeExtractionFailed, op, "failed to extract profile changes from conversation", err)
	}
	return cs, nil
}

func (c *Coach) GenerateProgram(ctx context.Context, kind models.ProgramKind, profile map[string]any) (map[string]any, error) {
	const op = "Coach.GenerateProgram"

	text, err := c.complete(ctx, op, llm.CompletionRequest{
		Messages:  []llm.Message{{Role: llm.RoleUser, Content: programPrompt(kind, profile)}},
		MaxTokens: 4096,
		JSONMode:  true,
	})
	if err != nil {
		return nil, err
	}
	doc, err := ParseObject(text)
	if err != nil {
		return nil, utils.E(utils.CodeExtractionFailed, op, "failed to generate "+string(kind)+" program", err)
	}
	return doc, nil
}

func (c *Coach) complete(ctx context.Context, op string, req llm.CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.llm.Complete(ctx, req)
	if err != nil {
		c.log.WithFields(logrus.Fields{
			"op":       op,
			"provider": c.llm.Name(),
			"elapsed":  time.Since(start).String(),
		}).WithError(err).Warn("generation call failed")
		return "", utils.E(utils.CodeUnavailable, op, "generation service unavailable", err)
	}
	return resp.Content, nil
}

func toMessages(turns []models.Turn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		role := llm.RoleUser
		if t.Role == models.RoleAssistantMsg {
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: t.Content})
	}
	return out
}

// ParseObject pulls the outermost {...} span out of free text and decodes it.
func ParseObject(text string) (map[string]any, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, errNoJSON
	}
	out := map[string]any{}
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// NormalizeProfile adds a null for every missing profile section. It never
// invents values inside a section.
func NormalizeProfile(doc map[string]any) map[string]any {
	for _, s := range models.ProfileSections {
		if _, ok := doc[s]; !ok {
			doc[s] = nil
		}
	}
	return doc
}

func ParseChangeSet(text string) (*models.ChangeSet, error) {
	doc, err := ParseObject(text)
	if err != nil {
		return nil, err
	}
	changes, ok := doc["changes"].(map[string]any)
	if !ok {
		return nil, errNoChanges
	}

	cs := &models.ChangeSet{Changes: changes, UpdateType: "other"}
	if s, ok := doc["summary"].(string); ok {
		cs.Summary = s
	}
	if s, ok := doc["update_type"].(string); ok && strings.TrimSpace(s) != "" {
		cs.UpdateType = strings.TrimSpace(s)
	}
	if b, ok := doc["suggests_regeneration"].(bool); ok {
		cs.SuggestsRegeneration = b
	}
	return cs, nil
}

type parseError string

func (e parseError) Error() string { return string(e) }

const (
	errNoJSON    parseError = "no json object in generation output"
	errNoChanges parseError = `change set has no "changes" object`
)
