package clienttest

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/goalie/internal/client/models"
)

func contextWithUser(r *http.Request, u *models.User) context.Context {
	return context.WithValue(r.Context(), userKey{}, u)
}
