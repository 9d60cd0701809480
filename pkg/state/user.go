package state

import (
	"context"
)

// Keys are plain strings so gin.Context, which resolves string keys through
// its own key store, can be passed wherever a context.Context is expected.
const (
	CurrentOwnerID = "CurrentOwnerID"
	CurrentOwnerIP = "CurrentIP"
)

// CurrentOwner returns the id of the account the request acts for, or 0 when
// the request is anonymous.
func CurrentOwner(ctx context.Context) uint {
	value := ctx.Value(CurrentOwnerID)
	if value == nil {
		return 0
	}

	ownerID, ok := value.(uint)
	if !ok {
		return 0
	}

	return ownerID
}

func SetCurrentOwner(ctx context.Context, ownerID uint) context.Context {
	return context.WithValue(ctx, CurrentOwnerID, ownerID)
}

func CurrentIP(ctx context.Context) string {
	ip, _ := ctx.Value(CurrentOwnerIP).(string)
	return ip
}
