package agentloop

// loopWindow is how many recent actions IsLooping inspects.
const loopWindow = 4

// recentActions returns the names of the last n non-synthetic actions in
// chronological order.
func recentActions(history []HistoryEntry, n int) []string {
	var actions []string
	// Walk history backwards to collect the most recent entries.
	for i := len(history) - 1; i >= 0 && len(actions) < n; i-- {
		if history[i].Synthetic {
			continue
		}
		actions = append(actions, history[i].Action)
	}
	reverse(actions)
	return actions
}

// recentObservations returns the last n non-synthetic observations in
// chronological order.
func recentObservations(history []HistoryEntry, n int) []string {
	var observations []string
	for i := len(history) - 1; i >= 0 && len(observations) < n; i-- {
		if history[i].Synthetic {
			continue
		}
		observations = append(observations, history[i].Observation)
	}
	reverse(observations)
	return observations
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// IsLooping reports whether action already occurs at least twice among the
// last four actions, so that taking it again would repeat it a third time.
func IsLooping(history []HistoryEntry, action string) bool {
	count := 0
	for _, a := range recentActions(history, loopWindow) {
		if a == action {
			count++
		}
	}
	return count >= 2
}

// repeatedAction returns the first action that occurs at least threshold
// times in actions, with its count.
func repeatedAction(actions []string, threshold int) (string, int, bool) {
	counts := make(map[string]int, len(actions))
	for _, a := range actions {
		counts[a]++
	}
	for _, a := range actions {
		if counts[a] >= threshold {
			return a, counts[a], true
		}
	}
	return "", 0, false
}

// followsPattern reports whether actions consist entirely of repetitions of
// their first patternLen elements.
func followsPattern(actions []string, patternLen int) bool {
	if patternLen <= 0 || len(actions) < patternLen || len(actions)%patternLen != 0 {
		return false
	}
	pattern := actions[:patternLen]
	for i := patternLen; i < len(actions); i += patternLen {
		for j := 0; j < patternLen; j++ {
			if actions[i+j] != pattern[j] {
				return false
			}
		}
	}
	return true
}

// isAlternating reports whether four actions follow A,B,A,B with A != B.
func isAlternating(actions []string) bool {
	return len(actions) == 4 && actions[0] != actions[1] && followsPattern(actions, 2)
}
