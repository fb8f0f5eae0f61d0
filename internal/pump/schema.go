package pump

// validateAndDeserialize is stage 6 (§4.6). It runs the target listener's
// codec over the payload element: schema validation first, then typed
// construction. It only ever consults the first target listener, per the
// spec's own note that broadcast schema-sharing is unresolved; this
// implementation requires unique root tags so there is always exactly
// one target by the time this stage runs.
func validateAndDeserialize(l *Listener, env *Envelope) (PayloadType, *PumpError) {
	if l.Codec.Validate != nil {
		if err := l.Codec.Validate(env.Payload); err != nil {
			return nil, newError(SchemaInvalid, env.ThreadID, "payload failed schema for listener %q: %v", l.Name, err)
		}
	}

	if l.Codec.Parse == nil {
		return nil, newError(Internal, env.ThreadID, "listener %q has no payload constructor", l.Name)
	}

	payload, err := l.Codec.Parse(env.Payload)
	if err != nil {
		return nil, newError(DeserialisationFailed, env.ThreadID, "failed to construct %s for listener %q: %v", l.Codec.TypeName, l.Name, err)
	}
	return payload, nil
}
