package http

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/aretw0/arbor/pkg/domain"
)

// openAPI serves the API description. The document is built
// programmatically from the app's registered commands, so it always
// matches what the server actually exposes.
func (s *Server) openAPI(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.buildSpec())
}

func (s *Server) buildSpec() *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       s.app.Title(),
			Description: s.app.Description(),
			Version:     "1.0.0",
		},
		Paths: openapi3.NewPaths(),
	}

	recordRef := &openapi3.SchemaRef{Value: recordSchema()}

	doc.Paths.Set("/api/commands", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "listCommands",
			Summary:     "List registered commands",
			Responses:   jsonResponse("Visible commands", openapi3.NewArraySchema().WithItems(commandSchema())),
		},
	})

	for _, cmd := range s.app.Commands() {
		op := &openapi3.Operation{
			OperationID: "run_" + cmd.Name,
			Summary:     cmd.Summary,
			RequestBody: &openapi3.RequestBodyRef{
				Value: openapi3.NewRequestBody().WithJSONSchemaRef(
					&openapi3.SchemaRef{Value: runRequestSchema(cmd.Params)},
				),
			},
			Responses: openapi3.NewResponses(
				openapi3.WithStatus(200, &openapi3.ResponseRef{
					Value: openapi3.NewResponse().
						WithDescription("Finished run record").
						WithJSONSchemaRef(recordRef),
				}),
				openapi3.WithStatus(202, &openapi3.ResponseRef{
					Value: openapi3.NewResponse().
						WithDescription("Background run accepted").
						WithJSONSchema(acceptedSchema()),
				}),
			),
		}
		doc.Paths.Set("/api/commands/"+cmd.Name+"/run", &openapi3.PathItem{Post: op})
	}

	doc.Paths.Set("/api/runs", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "listRuns",
			Summary:     "List persisted run records",
			Parameters: openapi3.Parameters{
				&openapi3.ParameterRef{
					Value: openapi3.NewQueryParameter("session").WithSchema(openapi3.NewStringSchema()),
				},
			},
			Responses: jsonResponse("Run records, newest first",
				openapi3.NewArraySchema().WithItems(recordSchema())),
		},
	})
	doc.Paths.Set("/api/runs/{id}", &openapi3.PathItem{
		Get: &openapi3.Operation{
			OperationID: "getRun",
			Summary:     "Fetch one run record",
			Parameters: openapi3.Parameters{
				&openapi3.ParameterRef{
					Value: openapi3.NewPathParameter("id").WithSchema(openapi3.NewStringSchema()),
				},
			},
			Responses: jsonResponse("The run record", recordSchema()),
		},
	})

	return doc
}

func jsonResponse(desc string, schema *openapi3.Schema) *openapi3.Responses {
	return openapi3.NewResponses(openapi3.WithStatus(200, &openapi3.ResponseRef{
		Value: openapi3.NewResponse().WithDescription(desc).WithJSONSchema(schema),
	}))
}

func commandSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("summary", openapi3.NewStringSchema()).
		WithProperty("params", openapi3.NewArraySchema().WithItems(openapi3.NewObjectSchema())).
		WithProperty("hints", openapi3.NewObjectSchema())
}

func runRequestSchema(params []domain.Param) *openapi3.Schema {
	args := openapi3.NewObjectSchema()
	var required []string
	for _, p := range params {
		var ps *openapi3.Schema
		switch p.Type {
		case domain.ParamInt:
			ps = openapi3.NewIntegerSchema()
		case domain.ParamFloat:
			ps = openapi3.NewFloat64Schema()
		case domain.ParamBool:
			ps = openapi3.NewBoolSchema()
		case domain.ParamEnum:
			values := make([]any, len(p.Choices))
			for i, c := range p.Choices {
				values[i] = c
			}
			ps = openapi3.NewStringSchema().WithEnum(values...)
		default:
			ps = openapi3.NewStringSchema()
		}
		ps.Description = p.Help
		if p.Default != nil {
			ps.Default = p.Default
		}
		args.WithProperty(p.Name, ps)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	args.Required = required

	return openapi3.NewObjectSchema().
		WithProperty("args", args).
		WithProperty("mode", openapi3.NewStringSchema().WithEnum(
			string(domain.ModeImmediate), string(domain.ModeQueued), string(domain.ModeBackground))).
		WithProperty("session", openapi3.NewStringSchema())
}

func acceptedSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("run_id", openapi3.NewStringSchema()).
		WithProperty("status", openapi3.NewStringSchema())
}

func recordSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("run_id", openapi3.NewStringSchema()).
		WithProperty("session", openapi3.NewStringSchema()).
		WithProperty("command", openapi3.NewStringSchema()).
		WithProperty("args", openapi3.NewObjectSchema()).
		WithProperty("status", openapi3.NewStringSchema()).
		WithProperty("error", openapi3.NewStringSchema()).
		WithProperty("transcript", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema())).
		WithProperty("started_at", openapi3.NewStringSchema().WithFormat("date-time")).
		WithProperty("duration_ms", openapi3.NewInt64Schema())
}
