package consts

const (
	PushChannelKey = "push:account:"
)

const (
	LockKeyPrefix = "roger:lock:"
)
