package response

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitted(t *testing.T) {
	tests := []struct {
		name    string
		settled bool
		status  int
	}{
		{"running job", false, fiber.StatusAccepted},
		{"settled job", true, fiber.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Post("/jobs", func(c *fiber.Ctx) error {
				return Submitted(c, fiber.Map{"id": "job-1"}, tt.settled)
			})

			resp, err := app.Test(httptest.NewRequest("POST", "/jobs", nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			var got map[string]string
			require.NoError(t, json.Unmarshal(body, &got))
			assert.Equal(t, "job-1", got["id"])
		})
	}
}

func TestRateLimited(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return RateLimited(c) })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	var got ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, CodeRateLimited, got.Error.Code)
}
