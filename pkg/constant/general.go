package constant

const (
	ALREADY_EXISTS           = "%s already exists"
	CREATED                  = "%s created successfully"
	DELETED                  = "Deleted successfully"
	UPDATED                  = "Updated successfully"
	INVALID_REQUEST          = "Invalid request payload"
	INVALID_ID               = "invalid id"
	CANT_FIND                = "%s not found"
	SOMETHING_WENT_WRONG     = "something went wrong"
	INVALID_PAGE_NUMBER      = "invalid page number"
	PAGE_NUMBER_OUT_OF_RANGE = "page number out of range"
	UNAUTHORIZED_ACCESS      = "unauthorized access"
	TOKEN_REQUIRED           = "Token is required"
	INVALID_TOKEN            = "Invalid/Malformed auth token"
	TOKEN_EXPIRED            = "Token expired"
)
