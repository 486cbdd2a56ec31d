package symbolize

import "github.com/ianlancetaylor/demangle"

// demangleName demangles a symbol whose recorded language is C++ or Rust
// with the appropriate scheme; for an unknown language it is best-effort
// (Filter recognizes both Itanium C++ and Rust mangling). Filter never
// fails; on any parse error it returns name unchanged, so demangling never
// fails the call.
func demangleName(name string, lang Lang) string {
	switch lang {
	case LangCpp:
		return demangle.Filter(name)
	case LangRust:
		return demangle.Filter(name)
	case LangGo, LangC:
		return name
	default:
		return demangle.Filter(name)
	}
}
