package scope

import "errors"

var errMissingHost = errors.New("portal domain needs a scheme and host")
