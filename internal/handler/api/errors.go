package api

import (
	"errors"

	models "RiskKernel/internal/domain/models"
	xhttp "RiskKernel/pkg/http"
)

// kernelError maps a kernel error kind to its HTTP form. Unknown errors map to
// nil so the caller answers 500 without leaking the message.
func kernelError(err error) *xhttp.AppError {
	switch {
	case errors.Is(err, models.ErrContractViolation):
		return xhttp.UnprocessableError("ERR_CONTRACT", err)
	case errors.Is(err, models.ErrDataQuality):
		return xhttp.UnprocessableError("ERR_DATA_QUALITY", err)
	case errors.Is(err, models.ErrUpstreamUnavailable):
		return xhttp.UnavailableError(err)
	}
	return nil
}
