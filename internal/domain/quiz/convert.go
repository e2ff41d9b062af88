package quiz

// UpgradeV1 converts a legacy flat quiz to the v2 schema. Every v1 question
// becomes a multiple-choice question with a text-only stem.
func UpgradeV1(questions []QuestionV1) *Quiz {
	out := &Quiz{Version: "v2", Questions: make([]QuestionV2, 0, len(questions))}
	for _, q := range questions {
		out.Questions = append(out.Questions, QuestionV2{
			QuestionType: QuestionTypeMultipleChoice,
			QuestionStem: TextStem(q.Question),
			Answers: Answers{
				MultipleChoice: &MultipleChoiceAnswers{
					Answers:     append([]string(nil), q.Answers...),
					Distractors: append([]string(nil), q.Distractors...),
				},
			},
			Hint:     q.Hint,
			Feedback: q.Feedback,
		})
	}
	return out
}
