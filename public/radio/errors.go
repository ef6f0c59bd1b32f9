package radio

import "errors"

var ErrUnkownPayloadType = errors.New("unknown payload type")
var ErrDecrypt = errors.New("unable to decrypt payload")
var ErrKeyLength = errors.New("key must be 16 or 32 bytes")
