package accounts

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
	"github.com/google/uuid"
)

type Middleware interface {
	Impersonate(c router.Context, identifier string) error
	ProtectedRoute(cfg Config, errorHandler func(router.Context, error) error) router.MiddlewareFunc
}

func GetRouterSession(c router.Context, key string) (*SessionObject, error) {
	cookie := c.Locals(key)
	if cookie == nil {
		return nil, ErrUnableToFindSession
	}

	user, ok := cookie.(*jwt.Token)
	if user == nil || !ok {
		return nil, ErrUnableToDecodeSession
	}

	claims, ok := user.Claims.(jwt.MapClaims)
	if claims == nil || !ok {
		return nil, ErrUnableToMapClaims
	}

	return sessionFromClaims(claims)
}

func RegisterAccountRoutes[T any](app router.Router[T], opts ...AccountControllerOption) {

	controller := NewAccountController(opts...)

	app.
		Get(controller.Routes.Login,
			controller.LoginShow,
		).
		SetName("sign-in.get")

	app.
		Post(
			controller.Routes.Login,
			controller.LoginPost,
		).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.Register, controller.RegistrationShow).
		SetName("register.get")
	app.Post(controller.Routes.Register, controller.RegistrationCreate).
		SetName("register.post")

	app.Get(controller.Routes.Verify, controller.VerifyShow).
		SetName("verify.get")
	app.Post(controller.Routes.Resend, controller.ResendConfirmation).
		SetName("verify-resend.post")
	app.Get(controller.Routes.Confirm, controller.ConfirmEmail).
		SetName("confirm.get")

	app.Get(controller.Routes.AdminUsers, controller.AdminUserList).
		SetName("admin-users.get")
	app.Post(controller.Routes.AdminBulk, controller.AdminBulkAction).
		SetName("admin-users-bulk.post")
	app.Post(controller.Routes.AdminSweep, controller.AdminSweepUnverified).
		SetName("admin-users-sweep.post")
}

type AccountControllerRoutes struct {
	Login      string
	Logout     string
	Register   string
	Verify     string
	Resend     string
	Confirm    string
	AdminUsers string
	AdminBulk  string
	AdminSweep string
}

type AccountControllerViews struct {
	Login      string
	Logout     string
	Register   string
	Verify     string
	AdminUsers string
}

type AccountController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Tokens       *ConfirmationTokenService
	Routes       *AccountControllerRoutes
	Views        *AccountControllerViews
	Auther       HTTPAuthenticator
	Sink         ActivitySink
	Mailer       Mailer
	ErrorHandler router.ErrorHandler
}

type AccountControllerOption func(*AccountController) *AccountController

func NewAccountController(opts ...AccountControllerOption) *AccountController {
	c := &AccountController{
		Logger:       defLogger{},
		ErrorHandler: defaultErrHandler,
		Routes: &AccountControllerRoutes{
			Login:      "/login",
			Logout:     "/logout",
			Register:   "/register",
			Verify:     "/account/verify",
			Resend:     "/account/verify/resend",
			Confirm:    "/account/confirm",
			AdminUsers: "/admin/users",
			AdminBulk:  "/admin/users/bulk",
			AdminSweep: "/admin/users/sweep",
		},
		Views: &AccountControllerViews{
			Login:      "login",
			Logout:     "logout",
			Register:   "register",
			Verify:     "verify",
			AdminUsers: "admin_users",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in account controller...")
	}

	if c.Auther == nil {
		panic("Missing HTTPAuthenticator in account controller...")
	}

	if c.Tokens == nil {
		c.Tokens = NewConfirmationTokenService(c.Repo)
	}

	if c.Sink == nil {
		c.Sink = noopActivitySink{}
	}

	return c
}

func (a *AccountController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession will return the password
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AccountController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)
	errs := map[string]string{}

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload: %s", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if a.Debug {
		a.Logger.Debug("login payload: %s", print.MaybePrettyJSON(payload))
	}

	if err := a.Auther.Login(ctx, payload); err != nil {
		// blocked accounts and bad credentials render the same message, so
		// the form does not leak account status to an attacker
		errs["authentication"] = "Authentication Error"
		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors":  errs,
			"payload": payload,
		})
	}

	redirect := a.Auther.GetRedirect(ctx, "/")

	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *AccountController) LogOut(ctx router.Context) error {
	a.Auther.Logout(ctx)
	return ctx.Redirect("/", router.StatusTemporaryRedirect)
}

func (a *AccountController) RegistrationShow(ctx router.Context) error {
	return ctx.Render(a.Views.Register, router.ViewContext{
		"errors": map[string]string{},
		"record": RegisterUserMessage{},
	})
}

// RegistrationCreatePayload is the form paylaod
type RegistrationCreatePayload struct {
	Username        string `form:"username" json:"username"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r RegistrationCreatePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(10, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AccountController) RegistrationCreate(ctx router.Context) error {
	payload := new(RegistrationCreatePayload)

	if err := ctx.Bind(payload); err != nil {
		errs := map[string]string{}
		errs["form"] = "Failed to parse form"
		a.Logger.Error("register user parse payload: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Render(a.Views.Register, router.ViewContext{
			"errors": errs,
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		errs := FormatValidationErrorToMap(err)
		a.Logger.Error("register user validate payload: %s", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Register, router.ViewContext{
			"record":     payload,
			"validation": errs,
		})
	}

	req := RegisterUserMessage{
		Username: payload.Username,
		Email:    payload.Email,
		Password: payload.Password,
	}

	registerUser := NewRegisterUserHandler(a.Repo, a.Tokens,
		WithRegisterMailer(a.Mailer),
		WithRegisterActivitySink(a.Sink),
		WithRegisterLogger(a.Logger),
		WithConfirmationBaseURL(a.Routes.Confirm),
	)
	if err := registerUser.Execute(ctx.Context(), req); err != nil {
		a.Logger.Error("register user error: %s", err)

		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error registering account",
		}).Render(a.Views.Register, router.ViewContext{
			"record": payload,
			"errors": []string{err.Error()},
		})
	}

	// the account is unverified until the emailed link is followed
	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Check your email for a confirmation link",
	}).Redirect(a.Routes.Verify, fiber.StatusSeeOther)
}

func (a *AccountController) VerifyShow(ctx router.Context) error {
	reason := ctx.Query("reason", "")
	return ctx.Render(a.Views.Verify, router.ViewContext{
		"errors": nil,
		"reason": reason,
	})
}

// ResendConfirmationPayload asks for a fresh confirmation link.
type ResendConfirmationPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r ResendConfirmationPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// ResendConfirmation issues a fresh token for an unverified account and mails
// the link again. The response is the same whether or not the address exists,
// so the form cannot be used to enumerate accounts.
func (a *AccountController) ResendConfirmation(ctx router.Context) error {
	payload := new(ResendConfirmationPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("resend confirmation parse payload: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Redirect(a.Routes.Verify, fiber.StatusSeeOther)
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("resend confirmation validate payload: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.Verify, router.ViewContext{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if user, err := a.Repo.Users().GetByIdentifier(ctx.Context(), payload.Email); err == nil && user.IsUnverified() {
		a.resendConfirmationMail(ctx, user)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "If the address is registered, a new confirmation link is on its way",
	}).Redirect(a.Routes.Verify, fiber.StatusSeeOther)
}

func (a *AccountController) resendConfirmationMail(ctx router.Context, user *User) {
	rawToken, err := a.Tokens.Issue(ctx.Context(), user.ID, PurposeEmailConfirmation)
	if err != nil {
		a.Logger.Error("resend confirmation token issue: %s", err)
		return
	}

	mailer := normalizeMailer(a.Mailer, a.Logger)
	msg := MailMessage{
		To:      user.Email,
		Subject: "Confirm your email address",
		Body:    ConfirmationLink(a.Routes.Confirm, user.ID, rawToken),
	}

	if err := mailer.Send(ctx.Context(), msg); err != nil {
		a.Logger.Error("failed to resend confirmation email to %s: %s", user.Email, err)
	}
}

// ConfirmEmailPayload carries the confirmation link parameters.
type ConfirmEmailPayload struct {
	UserID string `form:"uid" json:"uid" query:"uid"`
	Token  string `form:"token" json:"token" query:"token"`
}

// Validate will validate the payload
func (r ConfirmEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required, is.UUID),
		validation.Field(&r.Token, validation.Required),
	)
}

// ConfirmEmail consumes the emailed token and activates the account. On
// success the user is redirected to login; confirmation never signs in.
func (a *AccountController) ConfirmEmail(ctx router.Context) error {
	payload := ConfirmEmailPayload{
		UserID: ctx.Query("uid", ""),
		Token:  ctx.Query("token", ""),
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("confirm email validate payload: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Invalid confirmation link",
		}).Render(a.Views.Verify, router.ViewContext{
			"validation": FormatValidationErrorToMap(err),
		})
	}

	userID, err := uuid.Parse(payload.UserID)
	if err != nil {
		return flash.WithError(ctx, router.ViewContext{
			"system_message": "Invalid confirmation link",
		}).Render(a.Views.Verify, router.ViewContext{})
	}

	confirm := NewConfirmEmailHandler(a.Repo, a.Tokens,
		WithConfirmActivitySink(a.Sink),
		WithConfirmLogger(a.Logger),
	)

	msg := ConfirmEmailMessage{
		UserID: userID,
		Token:  payload.Token,
	}

	if err := confirm.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("confirm email error: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "The confirmation link is invalid or has expired",
		}).Render(a.Views.Verify, router.ViewContext{
			"errors": []string{err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Email confirmed, you can now sign in",
	}).Redirect(a.Routes.Login, fiber.StatusSeeOther)
}

func (a *AccountController) AdminUserList(ctx router.Context) error {
	users, err := a.Repo.Users().ListByLastLogin(ctx.Context())
	if err != nil {
		a.Logger.Error("admin user list error: %s", err)
		return a.ErrorHandler(ctx, err)
	}

	return ctx.Render(a.Views.AdminUsers, router.ViewContext{
		"records": users,
	})
}

// AdminBulkPayload is the admin selection form.
type AdminBulkPayload struct {
	Action  string   `form:"action" json:"action"`
	UserIDs []string `form:"user_ids" json:"user_ids"`
}

// Validate will validate the payload
func (r AdminBulkPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Action,
			validation.Required,
			validation.In(
				string(BulkActionBlock),
				string(BulkActionUnblock),
				string(BulkActionDelete),
			),
		),
	)
}

func (a *AccountController) AdminBulkAction(ctx router.Context) error {
	payload := new(AdminBulkPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("admin bulk parse payload: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"system_message": "Error parsing body",
		}).Status(fiber.StatusBadRequest).Redirect(a.Routes.AdminUsers, fiber.StatusSeeOther)
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("admin bulk validate payload: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Redirect(a.Routes.AdminUsers, fiber.StatusSeeOther)
	}

	ids := make([]uuid.UUID, 0, len(payload.UserIDs))
	for _, raw := range payload.UserIDs {
		if id, err := uuid.Parse(raw); err == nil {
			ids = append(ids, id)
		}
	}

	var summary *BulkActionSummary

	action, _ := ParseBulkAction(payload.Action)
	msg := BulkActionMessage{
		Action:  action,
		UserIDs: ids,
		Actor:   a.adminActor(ctx),
		OnResponse: func(s *BulkActionSummary) {
			summary = s
		},
	}

	handler := NewBulkActionHandler(a.Repo,
		WithBulkActivitySink(a.Sink),
		WithBulkLogger(a.Logger),
	)

	if err := handler.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("admin bulk action error: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Bulk action failed",
		}).Redirect(a.Routes.AdminUsers, fiber.StatusSeeOther)
	}

	if summary != nil && summary.NoneSelected {
		return flash.WithSuccess(ctx, router.ViewContext{
			"system_message": "No users selected",
		}).Redirect(a.Routes.AdminUsers, fiber.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Bulk action applied",
		"summary":        summary,
	}).Redirect(a.Routes.AdminUsers, fiber.StatusSeeOther)
}

func (a *AccountController) AdminSweepUnverified(ctx router.Context) error {
	removed := 0

	handler := NewSweepUnverifiedHandler(a.Repo,
		WithSweepActivitySink(a.Sink),
		WithSweepLogger(a.Logger),
	)

	msg := SweepUnverifiedMessage{
		Actor: a.adminActor(ctx),
		OnResponse: func(n int) {
			removed = n
		},
	}

	if err := handler.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("admin sweep error: %s", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Sweep failed",
		}).Redirect(a.Routes.AdminUsers, fiber.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Unverified accounts removed",
		"removed":        removed,
	}).Redirect(a.Routes.AdminUsers, fiber.StatusSeeOther)
}

func (a *AccountController) adminActor(ctx router.Context) ActorRef {
	if session, err := GetRouterSession(ctx, "user"); err == nil {
		return ActorRef{ID: session.GetUserID(), Type: "admin"}
	}
	return ActorRef{Type: "admin"}
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors so templates can
// render a message per field.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["error"] = err.Error()
	return out
}

func defaultErrHandler(c router.Context, err error) error {
	return c.Render("errors/500", router.ViewContext{
		"message": err.Error(),
	})
}
