// Package openapi builds the OpenAPI 3.1 document describing the HTTP API.
package openapi

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/faucetdb/usher/internal/model"
)

const (
	tagAuth  = "auth"
	tagUsers = "users"
)

var errorDescriptions = map[string]string{
	"400": "Bad request",
	"401": "Unauthorized",
	"403": "Forbidden",
	"404": "Not found",
	"409": "Conflict",
	"429": "Too many requests",
	"500": "Internal server error",
}

// Generate builds the OpenAPI document for the API served at baseURL.
func Generate(baseURL, version string) *openapi3.T {
	if version == "" {
		version = "dev"
	}
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Usher API",
			Description: "Token authentication and staff-only user administration.",
			Version:     version,
		},
		Servers: openapi3.Servers{
			{URL: baseURL},
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["tokenAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:        "apiKey",
			In:          "header",
			Name:        "Authorization",
			Description: `Send "Token <key>" using the key returned by login.`,
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:   "http",
			Scheme: "bearer",
		},
	}

	addSchemas(doc)
	doc.Paths = openapi3.NewPaths()
	addAuthPaths(doc)
	addUserPaths(doc)
	return doc
}

func addSchemas(doc *openapi3.T) {
	s := doc.Components.Schemas
	s["Account"] = structSchema(model.Account{}, "id", "is_staff", "is_superuser", "last_login", "date_joined")
	s["AccountSummary"] = structSchema(model.AccountSummary{})
	s["AccountCreate"] = structSchema(model.NewAccount{})
	s["AccountCreate"].Value.Required = []string{"username"}
	s["AccountUpdate"] = structSchema(model.AccountPatch{})
	s["UserStats"] = structSchema(model.UserStats{})
	s["Status"] = structSchema(model.StatusResponse{})
	s["Session"] = structSchema(model.SessionResponse{})
	s["Session"].Value.Properties["user"] = openapi3.NewSchemaRef("#/components/schemas/AccountSummary", nil)
	s["LoginResponse"] = structSchema(model.LoginResponse{})
	s["LoginResponse"].Value.Properties["user"] = openapi3.NewSchemaRef("#/components/schemas/AccountSummary", nil)

	s["LoginRequest"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"username": {Value: openapi3.NewStringSchema()},
				"password": {Value: openapi3.NewStringSchema().WithFormat("password")},
			},
			Required: []string{"username", "password"},
		},
	}

	s["ErrorResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": {Value: openapi3.NewStringSchema()},
				"fields": {Value: &openapi3.Schema{
					Type:                 &openapi3.Types{"object"},
					AdditionalProperties: openapi3.AdditionalProperties{Schema: &openapi3.SchemaRef{Value: openapi3.NewStringSchema()}},
				}},
			},
			Required: []string{"error"},
		},
	}

	s["AccountPage"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"count":    {Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}},
				"next":     {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "uri", Nullable: true}},
				"previous": {Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Format: "uri", Nullable: true}},
				"results": {Value: &openapi3.Schema{
					Type:  &openapi3.Types{"array"},
					Items: ref("Account"),
				}},
			},
		},
	}
}

func addAuthPaths(doc *openapi3.T) {
	login := operation(tagAuth, "login", "Log in",
		"Exchange a username and password for the account's API token. Repeated logins return the same token.",
		"200", "Token and account summary", ref("LoginResponse"), "400", "403", "429")
	login.RequestBody = jsonBody("Credentials", "LoginRequest")
	login.Security = &openapi3.SecurityRequirements{}
	doc.Paths.Set("/api/auth/login/", &openapi3.PathItem{Post: login})

	logout := operation(tagAuth, "logout", "Log out",
		"Revoke the caller's token. The next login issues a new one.",
		"200", "Token revoked", ref("Status"), "401")
	logout.Security = secured()
	doc.Paths.Set("/api/auth/logout/", &openapi3.PathItem{Post: logout})

	check := operation(tagAuth, "check_session", "Check session",
		"Report whether the request carries a valid token. Never fails.",
		"200", "Session state", ref("Session"))
	check.Security = &openapi3.SecurityRequirements{}
	doc.Paths.Set("/api/auth/check/", &openapi3.PathItem{Get: check})
}

func addUserPaths(doc *openapi3.T) {
	list := operation(tagUsers, "list_users", "List users",
		"Page through all accounts, newest first.",
		"200", "One page of accounts", ref("AccountPage"), "401", "403", "404")
	list.Parameters = openapi3.Parameters{
		&openapi3.ParameterRef{
			Value: openapi3.NewQueryParameter("page").
				WithDescription("1-based page number.").
				WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}),
		},
	}

	create := operation(tagUsers, "create_user", "Create user",
		"Create an account. Without a password the account cannot log in.",
		"201", "Created account", ref("Account"), "400", "401", "403", "409")
	create.RequestBody = jsonBody("Account to create", "AccountCreate")

	doc.Paths.Set("/api/users/", &openapi3.PathItem{Get: list, Post: create})

	idParam := openapi3.Parameters{
		&openapi3.ParameterRef{
			Value: openapi3.NewPathParameter("id").
				WithDescription("Account ID.").
				WithSchema(&openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int64"}),
		},
	}

	get := operation(tagUsers, "get_user", "Get user", "Retrieve one account.",
		"200", "Account", ref("Account"), "401", "403", "404")
	replace := operation(tagUsers, "replace_user", "Replace user",
		"Full update. username is required.",
		"200", "Updated account", ref("Account"), "400", "401", "403", "404", "409")
	replace.RequestBody = jsonBody("Account fields", "AccountUpdate")
	patch := operation(tagUsers, "update_user", "Update user",
		"Partial update. Absent fields are left unchanged.",
		"200", "Updated account", ref("Account"), "400", "401", "403", "404", "409")
	patch.RequestBody = jsonBody("Fields to change", "AccountUpdate")
	del := operation(tagUsers, "delete_user", "Delete user",
		"Delete an account and its token. Requires a superuser.",
		"204", "Deleted", nil, "401", "403", "404")

	doc.Paths.Set("/api/users/{id}/", &openapi3.PathItem{
		Parameters: idParam,
		Get:        get,
		Put:        replace,
		Patch:      patch,
		Delete:     del,
	})

	suspend := operation(tagUsers, "suspend_user", "Suspend user",
		"Deactivate an account. Superusers cannot be suspended.",
		"200", "Suspended", ref("Status"), "401", "403", "404")
	doc.Paths.Set("/api/users/{id}/suspend/", &openapi3.PathItem{Parameters: idParam, Post: suspend})

	unsuspend := operation(tagUsers, "unsuspend_user", "Unsuspend user",
		"Reactivate an account.",
		"200", "Reactivated", ref("Status"), "401", "403", "404")
	doc.Paths.Set("/api/users/{id}/unsuspend/", &openapi3.PathItem{Parameters: idParam, Post: unsuspend})

	stats := operation(tagUsers, "user_stats", "User statistics",
		"Order aggregates for an account.",
		"200", "Statistics", ref("UserStats"), "401", "403", "404")
	doc.Paths.Set("/api/users/{id}/stats/", &openapi3.PathItem{Parameters: idParam, Get: stats})
}

// operation builds an operation with a success response and the listed
// error responses. Operations require a token unless the caller clears
// Security.
func operation(tag, id, summary, description, status, statusDesc string, schema *openapi3.SchemaRef, errorCodes ...string) *openapi3.Operation {
	return &openapi3.Operation{
		Tags:        []string{tag},
		Summary:     summary,
		Description: description,
		OperationID: id,
		Security:    secured(),
		Responses:   newResponses(status, statusDesc, schema, errorCodes...),
	}
}

// newResponses builds a Responses map with a success response and error
// responses sharing the ErrorResponse schema. A nil schema means no body.
func newResponses(statusCode, description string, schema *openapi3.SchemaRef, errorCodes ...string) *openapi3.Responses {
	responses := openapi3.NewResponses()

	successDesc := description
	success := &openapi3.Response{Description: &successDesc}
	if schema != nil {
		success.Content = openapi3.NewContentWithJSONSchemaRef(schema)
	}
	responses.Set(statusCode, &openapi3.ResponseRef{Value: success})

	errorRef := ref("ErrorResponse")
	codes := append([]string{}, errorCodes...)
	codes = append(codes, "500")
	for _, code := range codes {
		desc := errorDescriptions[code]
		responses.Set(code, &openapi3.ResponseRef{
			Value: &openapi3.Response{
				Description: &desc,
				Content:     openapi3.NewContentWithJSONSchemaRef(errorRef),
			},
		})
	}
	return responses
}

func jsonBody(description, schemaName string) *openapi3.RequestBodyRef {
	return &openapi3.RequestBodyRef{
		Value: &openapi3.RequestBody{
			Description: description,
			Required:    true,
			Content:     openapi3.NewContentWithJSONSchemaRef(ref(schemaName)),
		},
	}
}

func secured() *openapi3.SecurityRequirements {
	return &openapi3.SecurityRequirements{
		{"tokenAuth": {}},
		{"bearerAuth": {}},
	}
}

func ref(name string) *openapi3.SchemaRef {
	return openapi3.NewSchemaRef(fmt.Sprintf("#/components/schemas/%s", name), nil)
}
