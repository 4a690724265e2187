package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/etala/case-service/internal/auth"
	"github.com/etala/case-service/internal/domain"
	apperrors "github.com/etala/case-service/pkg/util/errorutil"
)

const defaultPageSize = 20

func principalOf(c *fiber.Ctx) (domain.Principal, error) {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return domain.Principal{}, apperrors.NewUnauthorized("authentication required")
	}
	return *principal, nil
}

// pagination reads page and page_size into limit and offset.
func pagination(c *fiber.Ctx) (limit, offset int) {
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), defaultPageSize)
	return pageSize, (page - 1) * pageSize
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
