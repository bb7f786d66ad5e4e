package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/neomorfeo/useriq/internal/app"
	"github.com/neomorfeo/useriq/internal/domain"
)

// UserResponse is the API representation of a user projection. The
// confirmation token is never exposed.
type UserResponse struct {
	ID             string `json:"id" doc:"Unique identifier"`
	TenancyID      string `json:"tenancy_id" doc:"Owning tenancy"`
	FirstName      string `json:"first_name" doc:"Given name"`
	LastName       string `json:"last_name" doc:"Family name"`
	Email          string `json:"email" doc:"Email address"`
	IsAdmin        bool   `json:"is_admin" doc:"Tenancy administrator flag"`
	Version        int    `json:"version" doc:"Current aggregate version"`
	TenantStatus   string `json:"tenant_status" doc:"Lifecycle state"`
	ProviderStatus string `json:"provider_status" doc:"Provider availability state"`
	Domain         string `json:"domain" doc:"Tenancy domain"`
	CreatedAt      string `json:"created_at" doc:"Creation timestamp (ISO 8601)"`
	LastUpdate     string `json:"last_update" doc:"Last event timestamp (ISO 8601)"`
	Expiry         string `json:"expiry" doc:"Confirmation window deadline (ISO 8601)"`
}

func toUserResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:             u.ID,
		TenancyID:      u.TenancyID,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		Email:          u.Email,
		IsAdmin:        u.IsAdmin,
		Version:        u.Version,
		TenantStatus:   string(u.TenantStatus),
		ProviderStatus: string(u.ProviderStatus),
		Domain:         u.Domain,
		CreatedAt:      u.CreatedAt.Format(time.RFC3339),
		LastUpdate:     u.LastUpdate.Format(time.RFC3339),
		Expiry:         u.Expiry.Format(time.RFC3339),
	}
}

// --- Create User ---

type CreateUserInput struct {
	Body struct {
		TenancyID string `json:"tenancy_id" minLength:"1" doc:"Owning tenancy"`
		FirstName string `json:"first_name" minLength:"1" maxLength:"255" doc:"Given name"`
		LastName  string `json:"last_name" minLength:"1" maxLength:"255" doc:"Family name"`
		Email     string `json:"email" format:"email" doc:"Email address"`
		Domain    string `json:"domain" minLength:"1" doc:"Tenancy domain"`
		IsAdmin   bool   `json:"is_admin,omitempty" doc:"Create as tenancy administrator"`
	}
}

type CreateUserOutput struct {
	Body UserResponse
}

// --- Get User / Confirmation Read ---

type GetUserInput struct {
	ID     string `path:"id" doc:"User ID"`
	Action string `query:"action" required:"false" enum:"confirmation" doc:"Read purpose; confirmation enforces token and window checks"`
	Token  string `query:"token" required:"false" doc:"Confirmation token from the invitation link"`
}

type GetUserOutput struct {
	Body UserResponse
}

// --- Commands ---

type UserCommandInput struct {
	ID   string `path:"id" doc:"User ID"`
	Body struct {
		Command         string `json:"command" enum:"confirm,reject,delete" doc:"Lifecycle command to apply"`
		InitialPassword string `json:"initial_password,omitempty" doc:"Initial password, required for confirm"`
	}
}

type UserCommandOutput struct {
	Body UserResponse
}

// Register adds all user API routes to the Huma API.
func Register(api huma.API, svc *app.UserService) {
	huma.Register(api, huma.Operation{
		OperationID: "create-user",
		Method:      http.MethodPost,
		Path:        "/api/v1/users",
		Summary:     "Create a new user",
		Tags:        []string{"Users"},
	}, func(ctx context.Context, input *CreateUserInput) (*CreateUserOutput, error) {
		user, err := svc.ApplyCommand(ctx, domain.CreateCommand{
			CommandMeta: domain.CommandMeta{ID: svc.NewCommandID(), At: time.Now().UTC()},
			TenancyID:   input.Body.TenancyID,
			FirstName:   input.Body.FirstName,
			LastName:    input.Body.LastName,
			Email:       input.Body.Email,
			Domain:      input.Body.Domain,
			IsAdmin:     input.Body.IsAdmin,
		})
		if err != nil {
			return nil, toHumaError(err)
		}
		return &CreateUserOutput{Body: toUserResponse(user)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-user",
		Method:      http.MethodGet,
		Path:        "/api/v1/users/{id}",
		Summary:     "Get a user by ID",
		Description: "With action=confirmation the read additionally verifies the confirmation token and window, for rendering the confirm/reject page.",
		Tags:        []string{"Users"},
	}, func(ctx context.Context, input *GetUserInput) (*GetUserOutput, error) {
		var (
			user domain.User
			err  error
		)
		if input.Action == "confirmation" {
			user, err = svc.ConfirmationRead(ctx, input.ID, input.Token)
		} else {
			user, err = svc.Materialize(ctx, input.ID)
		}
		if err != nil {
			return nil, toHumaError(err)
		}
		return &GetUserOutput{Body: toUserResponse(user)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-user-command",
		Method:      http.MethodPost,
		Path:        "/api/v1/users/{id}/commands",
		Summary:     "Apply a lifecycle command",
		Tags:        []string{"Users"},
	}, func(ctx context.Context, input *UserCommandInput) (*UserCommandOutput, error) {
		meta := domain.CommandMeta{ID: svc.NewCommandID(), At: time.Now().UTC(), UserID: input.ID}

		var cmd domain.Command
		switch input.Body.Command {
		case "confirm":
			if input.Body.InitialPassword == "" {
				return nil, huma.Error422UnprocessableEntity("confirm requires initial_password")
			}
			cmd = domain.ConfirmCommand{CommandMeta: meta, InitialPassword: input.Body.InitialPassword}
		case "reject":
			cmd = domain.RejectCommand{CommandMeta: meta}
		case "delete":
			cmd = domain.DeleteCommand{CommandMeta: meta}
		default:
			return nil, huma.Error422UnprocessableEntity("unknown command " + input.Body.Command)
		}

		user, err := svc.ApplyCommand(ctx, cmd)
		if err != nil {
			return nil, toHumaError(err)
		}
		return &UserCommandOutput{Body: toUserResponse(user)}, nil
	})
}

// toHumaError translates domain errors to Huma HTTP errors.
func toHumaError(err error) error {
	if errors.Is(err, domain.ErrUserNotFound) {
		return huma.Error404NotFound("user not found")
	}

	var preErr *domain.PreconditionError
	if errors.As(err, &preErr) {
		return huma.Error409Conflict(preErr.Error())
	}

	var confErr *domain.ConfirmationError
	if errors.As(err, &confErr) {
		return huma.Error409Conflict(confErr.Error())
	}

	var trErr *domain.TransitionError
	if errors.As(err, &trErr) {
		return huma.Error422UnprocessableEntity(trErr.Error())
	}

	var verErr *domain.VersionConflictError
	if errors.As(err, &verErr) {
		return huma.Error409Conflict(verErr.Error())
	}

	return huma.Error500InternalServerError("internal server error")
}
