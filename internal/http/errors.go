package http

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/sponsor-relay/internal/common"
	"github.com/hxuan190/sponsor-relay/internal/domain"
	"github.com/hxuan190/sponsor-relay/internal/http/httputil"
)

// toHTTPError translates a relay failure into the status and message shown to
// clients. Only InvalidIntent carries its cause, every other message is fixed.
func toHTTPError(err error) *common.HttpError {
	var (
		routeErr  *domain.RouteError
		buildErr  *domain.BuildError
		regErr    *domain.RegistryError
		submitErr *domain.SubmissionError
	)

	switch {
	case errors.As(err, &routeErr):
		code := strings.ToUpper(routeErr.Code.String())
		switch routeErr.Code {
		case domain.CodeInvalidIntent:
			msg := "invalid swap request"
			if routeErr.Err != nil {
				msg += ": " + routeErr.Err.Error()
			}
			return common.HTTPErrorBadRequest(msg).WithCode(code)
		case domain.CodeNoRouteFound:
			return common.HTTPErrorNotFound("no route found for this pair and amount").WithCode(code)
		default:
			return common.HTTPErrorServiceUnavailable("route aggregator unavailable, try again").WithCode(code)
		}

	case errors.As(err, &buildErr):
		code := strings.ToUpper(buildErr.Code.String())
		switch buildErr.Code {
		case domain.CodeStaleBlockReference:
			return common.HTTPErrorServiceUnavailable("recent block reference unavailable").WithCode(code)
		case domain.CodeLookupTableUnresolved:
			return common.HTTPErrorServiceUnavailable("address lookup tables unavailable").WithCode(code)
		case domain.CodeInstructionOverflow:
			return common.HTTPErrorUnprocessable("route does not fit in a single transaction").WithCode(code)
		case domain.CodeUnsafeInstruction:
			return common.HTTPErrorUnprocessable("route contains instructions the relay will not sponsor").WithCode(code)
		case domain.CodeQuoteExpired:
			return common.HTTPErrorGone("quote expired before the swap was built, request a new quote").WithCode(code)
		default:
			return common.HTTPErrorBadGateway("aggregator returned an unusable route").WithCode(code)
		}

	case errors.As(err, &regErr):
		code := strings.ToUpper(regErr.Code.String())
		switch regErr.Code {
		case domain.CodeNotFound:
			return common.HTTPErrorNotFound("unknown correlation id").WithCode(code)
		case domain.CodeExpired:
			return common.HTTPErrorGone("prepared swap expired, request a new one").WithCode(code)
		default:
			return common.HTTPErrorResourceConflict("prepared swap was already submitted").WithCode(code)
		}

	case errors.As(err, &submitErr):
		code := strings.ToUpper(submitErr.Code.String())
		switch submitErr.Code {
		case domain.CodeSignatureMismatch:
			return common.HTTPErrorBadRequest("signature does not match the prepared transaction").WithCode(code)
		case domain.CodeBlockReferenceExpired:
			return common.HTTPErrorGone("transaction expired before it landed").WithCode(code)
		case domain.CodeConfirmationTimeout:
			return common.HTTPErrorGatewayTimeout("transaction was not confirmed in time").WithCode(code)
		case domain.CodeTransactionFailed:
			return common.HTTPErrorUnprocessable("transaction failed on chain").WithCode(code)
		default:
			return common.HTTPErrorUnprocessable("transaction was rejected").WithCode(code)
		}
	}

	return common.HTTPErrorInternalError("")
}

func writeError(c *gin.Context, err error, data interface{}) {
	httputil.Fail(c, toHTTPError(err), data, string(domain.Recommend(err)))
}
