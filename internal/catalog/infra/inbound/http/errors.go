package http

import (
	"errors"

	"github.com/gin-gonic/gin"

	sharedDomain "github.com/davicafu/hexaledger/internal/shared/domain"
	"github.com/davicafu/hexaledger/pkg/utils"
)

// sendDomainError traduce los errores del dominio a su código HTTP.
func sendDomainError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, sharedDomain.ErrNotFound):
		utils.SendNotFound(c, err.Error())
	case errors.Is(err, sharedDomain.ErrConcurrencyConflict):
		utils.SendConflict(c, err.Error())
	case errors.Is(err, sharedDomain.ErrValidation):
		utils.SendUnprocessable(c, err.Error())
	case errors.Is(err, sharedDomain.ErrCapacityExceeded):
		utils.SendUnavailable(c, 1, err.Error())
	default:
		utils.SendInternalServerError(c, err.Error())
	}
}
