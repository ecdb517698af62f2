package log

// TemporaryLogLevel sets group to level when cond holds and returns a func
// restoring the previous setting. The restore runs regardless of cond:
//
//	defer log.TemporaryLogLevel("chunk", 10, verbose)()
func TemporaryLogLevel(group string, level int, cond bool) func() {
	return registry.TemporaryLogLevel(group, level, cond)
}

func (r *GroupRegistry) TemporaryLogLevel(group string, level int, cond bool) func() {
	previous, had := r.settings[group]
	if cond {
		r.ApplySetting(group, level)
	}
	return func() {
		if had {
			r.settings[group] = previous
		} else {
			delete(r.settings, group)
		}
	}
}
