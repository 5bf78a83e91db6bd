package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(RequestIDFrom(c))
	})

	call := func(header string) (string, string) {
		req := httptest.NewRequest(fiber.MethodGet, "/", nil)
		if header != "" {
			req.Header.Set(requestIDHeader, header)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.Header.Get(requestIDHeader), string(body)
	}

	echoed, local := call("trace-42_a.b")
	assert.Equal(t, "trace-42_a.b", echoed)
	assert.Equal(t, echoed, local)

	generated, local := call("")
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, local)

	replaced, _ := call("bad id\twith spaces")
	assert.NotEqual(t, "bad id\twith spaces", replaced)
	assert.Len(t, replaced, 36)

	replaced, _ = call(strings.Repeat("x", maxRequestIDLen+1))
	assert.Len(t, replaced, 36)
}
