package orchestrator

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/bibo/internal/persona"
	"github.com/danielpatrickdp/bibo/internal/provider"
)

// #endregion

// #region parse

// gatekeeperReply mirrors the JSON object the gatekeeper is asked for.
// Pointers distinguish a missing field from an empty one.
type gatekeeperReply struct {
	Decision *string `json:"decision"`
	Response *string `json:"response"`
}

// stripFences removes a markdown code fence the backend may have wrapped
// around the JSON object.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // drop the language tag line
	} else {
		s = strings.TrimPrefix(s, "json")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ParseClassification decodes a gatekeeper reply. Any defect yields
// ErrClassificationMalformed.
func ParseClassification(raw string) (Classification, error) {
	var reply gatekeeperReply
	if err := json.Unmarshal([]byte(stripFences(raw)), &reply); err != nil {
		return Classification{}, fmt.Errorf("%w: %v", ErrClassificationMalformed, err)
	}
	if reply.Decision == nil || reply.Response == nil {
		return Classification{}, fmt.Errorf("%w: missing field", ErrClassificationMalformed)
	}

	c := Classification{
		Decision: Decision(strings.ToLower(strings.TrimSpace(*reply.Decision))),
		Response: *reply.Response,
	}
	switch c.Decision {
	case DecisionSimple:
		if strings.TrimSpace(c.Response) == "" {
			return Classification{}, fmt.Errorf("%w: simple decision without response", ErrClassificationMalformed)
		}
	case DecisionMedium, DecisionComplex:
		c.Response = ""
	default:
		return Classification{}, fmt.Errorf("%w: unknown decision %q", ErrClassificationMalformed, c.Decision)
	}
	return c, nil
}

// #endregion

// #region classify

// classify asks the gatekeeper how much deliberation the prompt needs.
// Only a cancelled context is returned as an error; every other failure
// downgrades to the complex flow.
func (r *run) classify(ctx context.Context) (Classification, error) {
	gk := r.o.personas[persona.Gatekeeper]
	r.emit(labelClassify, nil, []persona.ID{gk.ID})

	raw, err := r.o.provider.GenerateText(ctx, provider.Request{
		Tier:              provider.TierFast,
		SystemInstruction: gk.Instruction,
		UserContent:       r.contextual,
		Temperature:       gk.Temperature,
		JSON:              true,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Classification{}, ctxErr
		}
		r.o.logger.Warn("gatekeeper failed, falling back to complex flow", zap.Error(err))
		return Classification{Decision: DecisionComplex}, nil
	}

	c, err := ParseClassification(raw)
	if err != nil {
		r.o.logger.Warn("gatekeeper reply rejected, falling back to complex flow",
			zap.Error(err), zap.Int("reply_len", len(raw)))
		return Classification{Decision: DecisionComplex}, nil
	}
	r.o.logger.Info("classified", zap.String("decision", string(c.Decision)))
	return c, nil
}

// #endregion
