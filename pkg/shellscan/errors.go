package shellscan

import "errors"

var ErrParseScript = errors.New("shellscan: parse script")
