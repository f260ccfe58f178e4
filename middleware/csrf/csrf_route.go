package csrf

import "github.com/goliatone/go-router"

// RouteConfig controls the token bootstrap endpoint used by fetch based
// clients, like the admin bulk action screen.
type RouteConfig struct {
	// Path is the GET route that returns the current token.
	Path string
	// ContextKey is where the middleware stored the minted token.
	ContextKey string
	// RouteName is the name assigned to the registered route.
	RouteName string
}

const (
	defaultRoutePath = "/account/csrf"
	defaultRouteName = "accounts.csrf.get"
)

// RegisterRoutes exposes the minted token as JSON. The middleware must run
// before this handler or the endpoint reports 401.
func RegisterRoutes[T any](app router.Router[T], cfg ...RouteConfig) {
	conf := RouteConfig{
		Path:       defaultRoutePath,
		ContextKey: DefaultContextKey,
		RouteName:  defaultRouteName,
	}

	if len(cfg) > 0 {
		if cfg[0].Path != "" {
			conf.Path = cfg[0].Path
		}
		if cfg[0].ContextKey != "" {
			conf.ContextKey = cfg[0].ContextKey
		}
		if cfg[0].RouteName != "" {
			conf.RouteName = cfg[0].RouteName
		}
	}

	app.Get(conf.Path, tokenEndpoint(conf)).SetName(conf.RouteName)
}

func tokenEndpoint(cfg RouteConfig) router.HandlerFunc {
	return func(ctx router.Context) error {
		token, _ := ctx.Locals(cfg.ContextKey).(string)
		if token == "" {
			return ctx.JSON(router.StatusUnauthorized, map[string]string{
				"error": ErrTokenMissing.Error(),
			})
		}

		// tokens are per caller, keep them out of shared caches
		ctx.SetHeader("Cache-Control", "no-store, max-age=0")
		ctx.SetHeader("Pragma", "no-cache")
		ctx.SetHeader("Expires", "0")

		fieldName := DefaultFieldName
		if v, ok := ctx.Locals(cfg.ContextKey + "_field").(string); ok && v != "" {
			fieldName = v
		}

		headerName := DefaultHeaderName
		if v, ok := ctx.Locals(cfg.ContextKey + "_header").(string); ok && v != "" {
			headerName = v
		}

		return ctx.JSON(router.StatusOK, map[string]string{
			"token":       token,
			"field_name":  fieldName,
			"header_name": headerName,
		})
	}
}
