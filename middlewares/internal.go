package middlewares

import (
	"crypto/subtle"
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v2"
)

const internalSecretHeader = "X-Internal-Secret"

var (
	internalOnce   sync.Once
	internalSecret []byte
	internalErr    error
)

func loadInternalSecret() error {
	internalOnce.Do(func() {
		sec := strings.TrimSpace(os.Getenv("INTERNAL_API_SECRET"))
		if sec == "" {
			internalErr = errors.New("internal API secret not configured (set INTERNAL_API_SECRET)")
			return
		}
		internalSecret = []byte(sec)
	})
	return internalErr
}

// InternalOnly gates operator/internal endpoints behind a shared-secret
// header. Comparison is constant-time; an unconfigured secret fails
// closed rather than letting requests through.
func InternalOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := loadInternalSecret(); err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"ok":      false,
				"message": "server auth not configured",
			})
		}
		got := []byte(strings.TrimSpace(c.Get(internalSecretHeader)))
		if len(got) == 0 || subtle.ConstantTimeCompare(got, internalSecret) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"ok":      false,
				"message": "missing/invalid internal secret",
			})
		}
		return c.Next()
	}
}

// resetInternalSecret lets tests re-read the environment.
func resetInternalSecret() {
	internalOnce = sync.Once{}
	internalSecret = nil
	internalErr = nil
}
