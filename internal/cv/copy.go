package cv

func copyRecord(r Record) Record {
	r.Input = copyInput(r.Input)
	return r
}

// copyInput deep-copies in. Sequence fields always come back non-nil so
// they encode as [] rather than null.
func copyInput(in Input) Input {
	out := in
	if in.ContactInfo != nil {
		ci := *in.ContactInfo
		out.ContactInfo = &ci
	}
	out.Skills = make([]Skill, len(in.Skills))
	for i, s := range in.Skills {
		s.YearsExperience = copyPtr(s.YearsExperience)
		out.Skills[i] = s
	}
	out.Experiences = make([]Experience, len(in.Experiences))
	for i, e := range in.Experiences {
		e.Skills = copyStrings(e.Skills)
		out.Experiences[i] = e
	}
	out.Education = make([]Education, len(in.Education))
	for i, e := range in.Education {
		e.GraduationYear = copyPtr(e.GraduationYear)
		e.GPA = copyPtr(e.GPA)
		out.Education[i] = e
	}
	out.Languages = make([]Language, len(in.Languages))
	copy(out.Languages, in.Languages)
	out.TechStack = copyStrings(in.TechStack)
	out.AnalysisResult = copyObject(in.AnalysisResult)
	out.Metadata = copyObject(in.Metadata)
	return out
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyStrings(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// copyObject deep-copies a decoded JSON object.
func copyObject(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyObject(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
