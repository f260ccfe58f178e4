package csrf

import (
	"testing"
	"time"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testSigningKey() []byte {
	return []byte("account-forms-signing-key")
}

func newFormContext(method, ip string) *router.MockContext {
	ctx := router.NewMockContext()
	ctx.On("Method").Return(method)
	ctx.On("IP").Return(ip)
	ctx.On("Locals", DefaultContextKey, mock.Anything).Return(nil)
	ctx.On("Locals", DefaultContextKey+"_field", mock.Anything).Return(nil)
	ctx.On("Locals", DefaultContextKey+"_header", mock.Anything).Return(nil)
	ctx.On("LocalsMerge", mock.Anything, mock.Anything).Return(map[string]any{}).Maybe()
	return ctx
}

func passthroughErrors(captured *error) router.ErrorHandler {
	return func(ctx router.Context, err error) error {
		if captured != nil {
			*captured = err
		}
		return err
	}
}

func TestMintAndValidate(t *testing.T) {
	cfg := Config{
		SigningKey:   testSigningKey(),
		ErrorHandler: passthroughErrors(nil),
	}

	handler := New(cfg)(func(ctx router.Context) error { return nil })

	getCtx := newFormContext("GET", "127.0.0.1")
	require.NoError(t, handler(getCtx))

	token, ok := getCtx.LocalsMock[DefaultContextKey].(string)
	require.True(t, ok)
	require.NotEmpty(t, token)

	postCtx := newFormContext("POST", "127.0.0.1")
	postCtx.On("FormValue", DefaultFieldName).Return(token)

	require.NoError(t, handler(postCtx))
	require.True(t, postCtx.NextCalled)
}

func TestTamperedTokenRejected(t *testing.T) {
	var captured error
	cfg := Config{
		SigningKey:   testSigningKey(),
		ErrorHandler: passthroughErrors(&captured),
	}

	handler := New(cfg)(func(ctx router.Context) error { return nil })

	postCtx := newFormContext("POST", "127.0.0.1")
	postCtx.On("FormValue", DefaultFieldName).Return("tampered")

	require.Error(t, handler(postCtx))
	require.ErrorIs(t, captured, ErrTokenInvalid)
}

func TestTokenBoundToCaller(t *testing.T) {
	var captured error
	cfg := Config{
		SigningKey:   testSigningKey(),
		ErrorHandler: passthroughErrors(&captured),
	}

	handler := New(cfg)(func(ctx router.Context) error { return nil })

	getCtx := newFormContext("GET", "127.0.0.1")
	require.NoError(t, handler(getCtx))
	token := getCtx.LocalsMock[DefaultContextKey].(string)

	postCtx := newFormContext("POST", "10.0.0.9")
	postCtx.On("FormValue", DefaultFieldName).Return(token)

	require.Error(t, handler(postCtx))
	require.ErrorIs(t, captured, ErrTokenInvalid)
}

func TestTokenExpires(t *testing.T) {
	var captured error
	cfg := Config{
		SigningKey:   testSigningKey(),
		MaxAge:       time.Nanosecond,
		ErrorHandler: passthroughErrors(&captured),
	}

	handler := New(cfg)(func(ctx router.Context) error { return nil })

	getCtx := newFormContext("GET", "127.0.0.1")
	require.NoError(t, handler(getCtx))
	token := getCtx.LocalsMock[DefaultContextKey].(string)

	time.Sleep(1100 * time.Millisecond)

	postCtx := newFormContext("POST", "127.0.0.1")
	postCtx.On("FormValue", DefaultFieldName).Return(token)

	require.Error(t, handler(postCtx))
	require.ErrorIs(t, captured, ErrTokenExpired)
}

func TestMissingTokenRejected(t *testing.T) {
	var captured error
	cfg := Config{
		SigningKey:   testSigningKey(),
		ErrorHandler: passthroughErrors(&captured),
	}

	handler := New(cfg)(func(ctx router.Context) error { return nil })

	postCtx := newFormContext("POST", "127.0.0.1")
	postCtx.On("FormValue", DefaultFieldName).Return("")
	postCtx.On("GetString", DefaultHeaderName, "").Return("")

	require.Error(t, handler(postCtx))
	require.ErrorIs(t, captured, ErrTokenMissing)
}

func TestMissingSigningKey(t *testing.T) {
	var captured error
	handler := New(Config{
		ErrorHandler: passthroughErrors(&captured),
	})(func(ctx router.Context) error { return nil })

	require.Error(t, handler(newFormContext("GET", "127.0.0.1")))
	require.ErrorIs(t, captured, ErrNoSigningKey)
}

func TestSkipBypassesProtection(t *testing.T) {
	handler := New(Config{
		SigningKey: testSigningKey(),
		Skip: func(ctx router.Context) bool {
			return true
		},
	})(func(ctx router.Context) error { return nil })

	postCtx := router.NewMockContext()
	require.NoError(t, handler(postCtx))
	require.True(t, postCtx.NextCalled)
}

func TestFormHelpers(t *testing.T) {
	ctx := router.NewMockContext()
	ctx.LocalsMock[DefaultContextKey] = "tok123"
	ctx.LocalsMock[DefaultContextKey+"_field"] = "_csrf"
	ctx.LocalsMock[DefaultContextKey+"_header"] = "X-CSRF-Token"

	helpers := FormHelpers(ctx, DefaultContextKey)
	require.Equal(t, "tok123", helpers["csrf_token"])
	require.Equal(t, `<input type="hidden" name="_csrf" value="tok123">`, helpers["csrf_field"])
	require.Equal(t, `<meta name="csrf-token" content="tok123">`, helpers["csrf_meta"])
	require.Equal(t, "X-CSRF-Token", helpers["csrf_header_name"])
}
