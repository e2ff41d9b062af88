package safety

import "strings"

// CategoryGroup is one band of the content guidelines. Each group is
// scored on a 1-5 Likert scale where 5 is fully compliant and anything
// below 5 flags the group's categories for review.
type CategoryGroup struct {
	Title      string
	CodePrefix string
	// Criteria5 and Criteria1 anchor the ends of the scale for the model.
	Criteria5 string
	Criteria1 string
	Note      string
	Categories []Category
}

type Category struct {
	Code            string
	Title           string
	UserDescription string
	LLMDescription  string
}

var CategoryGroups = []CategoryGroup{
	{
		Title:      "Language and discrimination",
		CodePrefix: "l",
		Criteria5:  "(Fully compliant): The content does not contain any discriminatory language, behaviour or images, offensive language, or strong language.",
		Criteria1:  "(Severely non-compliant): The content contains explicit discriminatory language, behaviour or images, highly offensive language, or excessive use of strong language.",
		Note:       "Even if the content is presented in a respectful, factual and sensitive manner, with historical context, the score must still reflect the presence of such content.",
		Categories: []Category{
			{"l/discriminatory-behaviour", "Discriminatory Behaviour", "discriminatory language, behaviour or images", "Discriminatory language, behaviour or images, whether on the grounds of race, gender, disability, religion or belief or sexual orientation, or otherwise."},
			{"l/language-may-offend", "Language May Offend", "language which has the power to offend", "Language which has the power to offend including terms of racist or ethnic abuse, sexual and sexist abuse, abuse relating to sexuality, pejorative terms aimed at illness or disabilities and derogatory or careless use of holy names or religious terms."},
			{"l/strong-language", "Strong Language", "strong language", "Including but not limited to the occasional use of swear words or curse words."},
		},
	},
	{
		Title:      "Violence and crime",
		CodePrefix: "v",
		Criteria5:  "(Fully compliant): The content does not contain any depiction or discussion of conflict, violence, serious violence or sexual violence.",
		Criteria1:  "(Severely non-compliant): The content contains graphic depiction or discussion of conflict, violence, serious violence or sexual violence.",
		Categories: []Category{
			{"v/conflict-or-violence", "Conflict or Violence", "depiction of war, threats of war, death or the aftermath of war or terrorism", "Depiction of war, threats of war, death or the aftermath of war or terrorism. Depiction or discussion of animal cruelty, violence or fighting, including threats of violence or the aftermath of violence."},
			{"v/serious-conflict-or-violence", "Serious Conflict or Violence", "use of weapons", "Use of weapons including knife crime. Murder. Gangs, peer pressure, child criminal exploitation."},
			{"v/sexual-violence", "Sexual Violence", "sexual or domestic abuse or violence", "Depiction or discussion of sexual or domestic abuse or violence, including threats of or the aftermath of such behaviour."},
		},
	},
	{
		Title:      "Upsetting, disturbing and sensitive",
		CodePrefix: "u",
		Criteria5:  "(Fully compliant): The content does not contain any upsetting, sensitive or distressing content.",
		Criteria1:  "(Severely non-compliant): The content contains significantly upsetting, sensitive or distressing content.",
		Categories: []Category{
			{"u/upsetting-content", "Upsetting Content", "content that may be upsetting", "Depiction or discussion of upsetting content including scary, confusing or unsettling events or topics that may challenge a young person's view of the world."},
			{"u/sensitive-content", "Sensitive Content", "sensitive or mature themes", "Depiction or discussion of sensitive content such as bullying, peer pressure, feelings of isolation, crime, illness or bereavement."},
			{"u/distressing-content", "Distressing Content", "content that may be distressing", "Depiction or discussion of serious mental health topics including self-harm, eating disorders or suicide, or of abuse or neglect."},
		},
	},
	{
		Title:      "Nudity and sex",
		CodePrefix: "s",
		Criteria5:  "(Fully compliant): The content does not contain any depiction or discussion of nudity or sexual content.",
		Criteria1:  "(Severely non-compliant): The content contains explicit depiction or discussion of nudity or sexual content.",
		Categories: []Category{
			{"s/nudity", "Nudity", "depiction of nudity", "Depiction or discussion of nudity, which may include partial or full nudity in an artistic or historical context."},
			{"s/sexual-content", "Sexual Content", "depiction of sexual content", "Depiction or discussion of sex or sexual body parts, including sex education and texts which include sexual content."},
		},
	},
	{
		Title:      "Physical activity and safety",
		CodePrefix: "p",
		Criteria5:  "(Fully compliant): The content does not involve physical activity, exploration of objects, use of equipment or imitable behaviours that require supervision or a risk assessment.",
		Criteria1:  "(Severely non-compliant): The content involves physical activity or behaviours with significant risk that would require adult supervision or a risk assessment.",
		Categories: []Category{
			{"p/exploration-of-objects", "Exploration of Objects", "exploration of objects", "Activities that involve collecting or handling items found in the environment."},
			{"p/equipment-safe-usage", "Equipment Safe Usage", "use of equipment requiring supervision", "Use of equipment or ingredients that may require supervision for safety, such as scissors, needles or cooking equipment."},
			{"p/imitable-behaviour", "Imitable Behaviour", "imitable activities requiring a risk assessment", "Activities pupils might imitate that could be dangerous without guidance or supervision."},
			{"p/external-content", "External Content", "external content or links", "Direction to external websites, videos or other content that Oak cannot verify."},
			{"p/physical-activity", "Physical Activity", "physical activity", "Physical activity such as sport, dance or drama that may require space or supervision."},
		},
	},
	{
		Title:      "Toxic",
		CodePrefix: "t",
		Criteria5:  "(Fully compliant): The content contains nothing that encourages harmful behaviour, illegal activity or violence, and no instructions for harming oneself or others or for creating weapons or harmful substances.",
		Criteria1:  "(Severely non-compliant): The content contains guides or instructions for harmful, illegal or violent activity, or attempts to misuse the lesson format for such ends.",
		Categories: []Category{
			{"t/guides-self-harm", "Guides Self-Harm", "guides for self-harm", "Guides, instructions or learning materials on how to harm oneself."},
			{"t/guides-harming-others", "Guides Harming Others", "guides for harming others", "Guides, instructions or learning materials on how to harm others."},
			{"t/creating-chemical-weapons", "Creating Chemical Weapons", "instructions for chemical weapons", "Guides, instructions or learning materials for creating chemical weapons."},
			{"t/creating-radioactive-weapons", "Creating Radioactive Weapons", "instructions for radioactive weapons", "Guides, instructions or learning materials for creating radioactive weapons."},
			{"t/creating-biological-weapons", "Creating Biological Weapons", "instructions for biological weapons", "Guides, instructions or learning materials for creating biological weapons."},
			{"t/creating-harmful-substances", "Creating Harmful Substances", "instructions for harmful substances", "Guides, instructions or learning materials for creating harmful or illegal substances."},
			{"t/encouragement-harmful-behaviour", "Encouragement of Harmful Behaviour", "encouragement of harmful behaviour", "Content that encourages harmful behaviour."},
			{"t/encouragement-illegal-activity", "Encouragement of Illegal Activity", "encouragement of illegal activity", "Content that encourages illegal activity."},
			{"t/encouragement-violence", "Encouragement of Violence", "encouragement of violence", "Content that encourages violence."},
		},
	},
}

// Scores holds the per-group Likert scores, keyed by group prefix.
type Scores struct {
	L int `json:"l"`
	V int `json:"v"`
	U int `json:"u"`
	S int `json:"s"`
	P int `json:"p"`
	T int `json:"t"`
}

const (
	// ScoreCompliant marks a fully compliant group.
	ScoreCompliant = 5
	scoreMin       = 1
)

// GroupOf returns the category group a flagged code belongs to.
func GroupOf(code string) (*CategoryGroup, bool) {
	prefix, _, ok := strings.Cut(code, "/")
	if !ok {
		return nil, false
	}
	for i := range CategoryGroups {
		if CategoryGroups[i].CodePrefix == prefix {
			return &CategoryGroups[i], true
		}
	}
	return nil, false
}

// ValidCategoryCode reports whether the model returned a known code.
func ValidCategoryCode(code string) bool {
	group, ok := GroupOf(code)
	if !ok {
		return false
	}
	for _, c := range group.Categories {
		if c.Code == code {
			return true
		}
	}
	return false
}
