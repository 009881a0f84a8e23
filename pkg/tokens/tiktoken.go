package tokens

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/herald-crm/herald/pkg/chat"
)

// Encodings are expensive to build, so completed ones are cached per model.
var (
	encodingCache = make(map[string]*tiktoken.Tiktoken)
	cacheMu       sync.RWMutex
)

// TiktokenEstimator counts tokens with a real model vocabulary. Used for
// usage accounting when an endpoint omits usage fields; budget decisions
// stay on the heuristic.
type TiktokenEstimator struct {
	encoding *tiktoken.Tiktoken
	model    string
}

var _ Estimator = (*TiktokenEstimator)(nil)

// NewTiktokenEstimator builds an estimator for model, falling back to the
// cl100k_base encoding for unknown model names.
func NewTiktokenEstimator(model string) (*TiktokenEstimator, error) {
	cacheMu.RLock()
	cached, ok := encodingCache[model]
	cacheMu.RUnlock()
	if ok {
		return &TiktokenEstimator{encoding: cached, model: model}, nil
	}

	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("tokens: no encoding for %q: %w", model, err)
		}
	}

	cacheMu.Lock()
	encodingCache[model] = encoding
	cacheMu.Unlock()

	return &TiktokenEstimator{encoding: encoding, model: model}, nil
}

// Estimate returns the exact token count of text under the model encoding.
func (t *TiktokenEstimator) Estimate(text string) int {
	if t == nil || t.encoding == nil {
		return HeuristicEstimator{}.Estimate(text)
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// EstimateMessages counts tokens in the OpenAI chat format: 3 tokens of
// framing per message plus 3 for the reply priming.
func (t *TiktokenEstimator) EstimateMessages(messages []chat.Message) int {
	if t == nil || t.encoding == nil {
		return HeuristicEstimator{}.EstimateMessages(messages)
	}
	total := 3
	for _, m := range messages {
		total += 3
		total += len(t.encoding.Encode(string(m.Role), nil, nil))
		total += len(t.encoding.Encode(m.Content, nil, nil))
	}
	return total
}

// Model returns the model name the estimator was built for.
func (t *TiktokenEstimator) Model() string {
	return t.model
}
