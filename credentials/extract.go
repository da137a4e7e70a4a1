package credentials

import (
	"net/url"
	"strings"
)

// Extract normalizes the parameters of the current page load into a Bundle.
//
// Recognition order: an error from the authority (any of error, error_code or
// error_description), then an authorization code, then an
// implicit token pair. Partial input such as an access token without its refresh token
// yields KindNone: the fragment relay may still be mid-conversion.
func Extract(params url.Values) Bundle {
	get := func(key string) string {
		return strings.TrimSpace(params.Get(key))
	}

	errParam := get(ParamError)
	errCode := get(ParamErrorCode)
	errDesc := get(ParamErrorDescription)
	if errParam != "" || errCode != "" || errDesc != "" {
		if errCode == "" {
			errCode = errParam
		}
		if errCode == "" {
			errCode = ErrorCodeUnknown
		}
		return Bundle{
			Kind:             KindError,
			Error:            errParam,
			ErrorCode:        errCode,
			ErrorDescription: errDesc,
			FlowType:         get(ParamType),
		}
	}

	if code := get(ParamCode); code != "" {
		return Bundle{
			Kind:     KindCode,
			Code:     code,
			FlowType: get(ParamType),
		}
	}

	access, refresh := get(ParamAccessToken), get(ParamRefreshToken)
	if access != "" && refresh != "" {
		return Bundle{
			Kind:         KindImplicit,
			AccessToken:  access,
			RefreshToken: refresh,
			FlowType:     get(ParamType),
		}
	}

	return None()
}

// ExtractMap is Extract for callers holding a flat map.
func ExtractMap(params map[string]string) Bundle {
	values := make(url.Values, len(params))
	for k, v := range params {
		values.Set(k, v)
	}
	return Extract(values)
}

// IsPending reports whether the fragment relay flagged this page load.
func IsPending(params url.Values) bool {
	return params.Get(ParamAuthPending) == "1"
}
