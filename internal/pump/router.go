package pump

import "strings"

// route is stage 7. It forms the lookup key from to_id and the payload's
// local tag (§4.5) and looks it up in the registry, returning a NoRoute
// error on a miss.
func route(reg *Registry, env *Envelope) ([]*Listener, *PumpError) {
	tag := strings.ToLower(env.Payload.LocalName())

	var key string
	if env.ToID != "" {
		key = strings.ToLower(env.ToID) + "." + tag
	} else {
		key = tag
	}

	targets := reg.Lookup(key)
	if len(targets) == 0 {
		return nil, newError(NoRoute, env.ThreadID, "no listener registered for routing key %q", key)
	}
	return targets, nil
}
