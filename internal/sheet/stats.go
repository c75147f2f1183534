package sheet

// Progress is a solved/total pair.
type Progress struct {
	Total  int `json:"total"`
	Solved int `json:"solved"`
}

type TopicProgress struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Progress
}

// Stats summarizes completion across the sheet. ByDifficulty always holds the
// three canonical keys; pass-through labels get their own entry.
type Stats struct {
	Progress
	ByDifficulty map[Difficulty]Progress `json:"byDifficulty"`
	Topics       []TopicProgress         `json:"topics"`
}

func ComputeStats(s Sheet) Stats {
	stats := Stats{
		ByDifficulty: map[Difficulty]Progress{Easy: {}, Medium: {}, Hard: {}},
		Topics:       make([]TopicProgress, 0, len(s.Topics)),
	}
	for _, topic := range s.Topics {
		tp := TopicProgress{ID: topic.ID, Name: topic.Name}
		for _, sub := range topic.SubTopics {
			for _, q := range sub.Questions {
				bucket := stats.ByDifficulty[q.Difficulty]
				bucket.Total++
				tp.Total++
				if q.IsSolved {
					bucket.Solved++
					tp.Solved++
				}
				stats.ByDifficulty[q.Difficulty] = bucket
			}
		}
		stats.Total += tp.Total
		stats.Solved += tp.Solved
		stats.Topics = append(stats.Topics, tp)
	}
	return stats
}

// Percent rounds solved/total to a whole percentage.
func (p Progress) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return (p.Solved*100 + p.Total/2) / p.Total
}
