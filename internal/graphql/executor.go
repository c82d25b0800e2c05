package graphql

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
	"go.uber.org/zap"
)

//go:embed schema.graphql
var schemaSDL string

var loadSchema = sync.OnceValue(func() *ast.Schema {
	return gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphql", Input: schemaSDL})
})

// Schema returns the parsed API schema.
func Schema() *ast.Schema {
	return loadSchema()
}

// Request is a GraphQL-over-HTTP request body.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Response is a GraphQL response. Data is nil when the request itself was
// rejected before any field ran.
type Response struct {
	Data   map[string]any `json:"data"`
	Errors gqlerror.List  `json:"errors,omitempty"`
}

// Rejected reports whether the request failed parsing or validation.
func (r *Response) Rejected() bool {
	return r.Data == nil && len(r.Errors) > 0
}

// Execute parses req, validates it against the schema and resolves each
// top-level field in order. A failing field is null in Data and reported in
// Errors; the other fields still resolve.
func (r *Resolver) Execute(ctx context.Context, req Request) *Response {
	schema := Schema()

	doc, errs := gqlparser.LoadQuery(schema, req.Query)
	if len(errs) > 0 {
		for _, e := range errs {
			badRequest(e)
		}
		return &Response{Errors: errs}
	}

	op := doc.Operations.ForName(req.OperationName)
	if op == nil {
		return rejected(fmt.Errorf("operation %q not found", req.OperationName))
	}

	var fields map[string]fieldFunc
	switch op.Operation {
	case ast.Query:
		fields = r.query
	case ast.Mutation:
		fields = r.mutation
	default:
		return rejected(fmt.Errorf("%s operations are not supported", op.Operation))
	}

	vars, verr := validator.VariableValues(schema, op, req.Variables)
	if verr != nil {
		return rejected(verr)
	}

	resp := &Response{Data: map[string]any{}}
	for _, f := range collectFields(op.SelectionSet) {
		if f.Name == "__typename" {
			resp.Data[f.Alias] = f.ObjectDefinition.Name
			continue
		}
		fn, ok := fields[f.Name]
		if !ok {
			resp.Data[f.Alias] = nil
			resp.Errors = append(resp.Errors, &gqlerror.Error{
				Message:    fmt.Sprintf("field %s is not served", f.Name),
				Path:       ast.Path{ast.PathName(f.Alias)},
				Extensions: map[string]any{"code": CodeBadRequest},
			})
			continue
		}

		value, err := r.resolveField(ctx, f, fn, vars)
		if err != nil {
			resp.Data[f.Alias] = nil
			resp.Errors = append(resp.Errors, toGraphQLError(err, ast.Path{ast.PathName(f.Alias)}))
			continue
		}
		resp.Data[f.Alias] = value
	}
	return resp
}

func (r *Resolver) resolveField(ctx context.Context, f *ast.Field, fn fieldFunc, vars map[string]any) (any, error) {
	start := time.Now()
	result, err := fn(ctx, f.ArgumentMap(vars))

	status := "success"
	if err != nil {
		status = "error"
		code := ErrorCode(err)
		log := r.Logger.Ctx(ctx).Warn
		if code == CodeInternal {
			log = r.Logger.Ctx(ctx).Error
		}
		log("GraphQL field failed",
			zap.String("field", f.Name),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	r.Metrics.RecordRequest("graphql_"+f.Name, "all", status, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	return project(result, f.SelectionSet)
}

// project reduces a resolver result to the selected fields. Results are
// rendered through their JSON form, so json tags must match schema names.
func project(v any, set ast.SelectionSet) (any, error) {
	if len(set) == 0 {
		return v, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, fmt.Errorf("decoding result: %w", err)
	}
	return selectFields(generic, set), nil
}

func selectFields(v any, set ast.SelectionSet) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = selectFields(t[i], set)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(set))
		for _, f := range collectFields(set) {
			if f.Name == "__typename" {
				out[f.Alias] = f.ObjectDefinition.Name
				continue
			}
			val := t[f.Name]
			if val != nil && len(f.SelectionSet) > 0 {
				val = selectFields(val, f.SelectionSet)
			}
			out[f.Alias] = val
		}
		return out
	default:
		return v
	}
}

// collectFields flattens fragments into the fields they select.
func collectFields(set ast.SelectionSet) []*ast.Field {
	var fields []*ast.Field
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			fields = append(fields, s)
		case *ast.InlineFragment:
			fields = append(fields, collectFields(s.SelectionSet)...)
		case *ast.FragmentSpread:
			if s.Definition != nil {
				fields = append(fields, collectFields(s.Definition.SelectionSet)...)
			}
		}
	}
	return fields
}

func rejected(err error) *Response {
	var gerr *gqlerror.Error
	if !errors.As(err, &gerr) {
		gerr = &gqlerror.Error{Message: err.Error()}
	}
	badRequest(gerr)
	return &Response{Errors: gqlerror.List{gerr}}
}

func badRequest(e *gqlerror.Error) {
	if e.Extensions == nil {
		e.Extensions = map[string]any{}
	}
	e.Extensions["code"] = CodeBadRequest
}
