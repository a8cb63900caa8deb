package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Typewise/mcp-chaos-rig/internal/contacts"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// contactCapabilities builds the CRUD tools over the contact store. They are
// the rig's stateful tools: mutations are visible to subsequent calls until
// the store is reset from the control API.
func contactCapabilities(store *contacts.Store) []Capability {
	single := func(name, description string, schema mcp.ToolInputSchema, handler server.ToolHandlerFunc) Capability {
		return Capability{
			Name:           name,
			DefaultVersion: "v1",
			Versions: []Version{
				{
					Tag: "v1",
					ServerTool: server.ServerTool{
						Tool: mcp.Tool{
							Name:        name,
							Description: description,
							InputSchema: schema,
						},
						Handler: handler,
					},
				},
			},
		}
	}

	idSchema := mcp.ToolInputSchema{
		Type: "object",
		Properties: map[string]interface{}{
			"id": map[string]interface{}{"type": "number", "description": "Contact id."},
		},
		Required: []string{"id"},
	}

	return []Capability{
		single("contacts_list", "Lists all contacts.", emptySchema(),
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				list, err := store.List(ctx)
				if err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("listing contacts: %v", err)), nil
				}
				return contactsResult(list)
			}),

		single("contacts_search", "Searches contacts by name or email.",
			textSchema("query", "Substring to match against name and email."),
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				query, err := request.RequireString("query")
				if err != nil {
					return mcp.NewToolResultError("query argument is required"), nil
				}
				list, err := store.Search(ctx, query)
				if err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("searching contacts: %v", err)), nil
				}
				return contactsResult(list)
			}),

		single("contacts_create", "Creates a contact.",
			mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"name":  map[string]interface{}{"type": "string", "description": "Full name."},
					"email": map[string]interface{}{"type": "string", "description": "Email address."},
					"phone": map[string]interface{}{"type": "string", "description": "Phone number."},
				},
				Required: []string{"name", "email"},
			},
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				name, err := request.RequireString("name")
				if err != nil {
					return mcp.NewToolResultError("name argument is required"), nil
				}
				email, err := request.RequireString("email")
				if err != nil {
					return mcp.NewToolResultError("email argument is required"), nil
				}
				phone := request.GetString("phone", "")

				created, err := store.Create(ctx, name, email, phone)
				if err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("creating contact: %v", err)), nil
				}
				return contactResult(created)
			}),

		single("contacts_update", "Updates a contact's fields; empty fields are left unchanged.",
			mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"id":    map[string]interface{}{"type": "number", "description": "Contact id."},
					"name":  map[string]interface{}{"type": "string", "description": "New full name."},
					"email": map[string]interface{}{"type": "string", "description": "New email address."},
					"phone": map[string]interface{}{"type": "string", "description": "New phone number."},
				},
				Required: []string{"id"},
			},
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				id, ok := numberArg(request.GetArguments(), "id")
				if !ok {
					return mcp.NewToolResultError("id argument is required"), nil
				}
				updated, err := store.Update(ctx, int64(id),
					request.GetString("name", ""),
					request.GetString("email", ""),
					request.GetString("phone", ""))
				if errors.Is(err, contacts.ErrNotFound) {
					return mcp.NewToolResultError(fmt.Sprintf("contact %d not found", int64(id))), nil
				}
				if err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("updating contact: %v", err)), nil
				}
				return contactResult(updated)
			}),

		single("contacts_delete", "Deletes a contact.", idSchema,
			func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				id, ok := numberArg(request.GetArguments(), "id")
				if !ok {
					return mcp.NewToolResultError("id argument is required"), nil
				}
				err := store.Delete(ctx, int64(id))
				if errors.Is(err, contacts.ErrNotFound) {
					return mcp.NewToolResultError(fmt.Sprintf("contact %d not found", int64(id))), nil
				}
				if err != nil {
					return mcp.NewToolResultError(fmt.Sprintf("deleting contact: %v", err)), nil
				}
				return mcp.NewToolResultText(fmt.Sprintf("deleted contact %d", int64(id))), nil
			}),
	}
}

func contactResult(c contacts.Contact) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

func contactsResult(list []contacts.Contact) (*mcp.CallToolResult, error) {
	if list == nil {
		list = []contacts.Contact{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}
