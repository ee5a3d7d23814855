package internal

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	risorCompiler "github.com/risor-io/risor/compiler"
	risorErrors "github.com/risor-io/risor/errz"
	risorParser "github.com/risor-io/risor/parser"
)

// Payload is what a risor artifact carries: the global names the expressions were checked
// against and the source of each entry point. Sources are compiled again at load time.
type Payload struct {
	Globals []string          `json:"globals"`
	Sources map[string]string `json:"sources"`
}

func (p *Payload) Encode() ([]byte, error) {
	return jsoniter.Marshal(p)
}

func DecodePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := jsoniter.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.Sources == nil {
		return nil, errors.New("payload has no sources")
	}
	return &p, nil
}

// Compile parses and compiles one expression against the given global names.
// Parse errors are rendered with risor's friendly formatting.
func Compile(ctx context.Context, source string, globals []string) (*risorCompiler.Code, error) {
	ast, err := risorParser.Parse(ctx, source)
	if err != nil {
		var friendlyErr risorErrors.FriendlyError
		if errors.As(err, &friendlyErr) {
			return nil, errors.New(friendlyErr.FriendlyErrorMessage())
		}
		return nil, err
	}

	code, err := risorCompiler.Compile(ast, risorCompiler.WithGlobalNames(globals))
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}
	return code, nil
}
