package artifactory

import "path"

// Path names an object on the remote instance, relative to the
// /artifactory/ prefix, e.g. "libs-release-local/org/acme/app/1.0/app-1.0.jar".
// It is not validated locally; the server rejects malformed paths.
type Path string

// PathOf converts any string-like value into a Path.
func PathOf[S ~string](s S) Path {
	return Path(s)
}

func (p Path) String() string {
	return string(p)
}

// Base returns the last element of the path.
func (p Path) Base() string {
	return path.Base(string(p))
}
