package types

// ExtractedInfo 从简历文本中提取出的结构化个人信息
type ExtractedInfo struct {
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Phone      string          `json:"phone"`
	Location   string          `json:"location"`
	Languages  []LanguageSkill `json:"languages"`
	Education  []Education     `json:"education"`
	Experience []Experience    `json:"experience"`
	Skills     []string        `json:"skills"`
	Summary    string          `json:"summary"`
}

// LanguageSkill 语言能力项
type LanguageSkill struct {
	Language string `json:"language"`
	Level    string `json:"level"` // basic / intermediate / advanced / native / professional
}

// Education 教育经历项
type Education struct {
	School         string `json:"school"`
	Degree         string `json:"degree"`
	Major          string `json:"major"`
	GraduationYear string `json:"graduationYear"`
}

// Experience 工作经历项
type Experience struct {
	Company     string   `json:"company"`
	Position    string   `json:"position"`
	Duration    string   `json:"duration"`
	Description string   `json:"description"`
	Skills      []string `json:"skills"`
}

// TechnicalSkillsCriteria 技术技能类别的结构化要求
type TechnicalSkillsCriteria struct {
	Weight          int      `json:"weight"`
	RequiredSkills  []string `json:"required_skills"`
	PreferredSkills []string `json:"preferred_skills"`
}

// ExperienceCriteria 工作经验类别的结构化要求
type ExperienceCriteria struct {
	Weight           int      `json:"weight"`
	MinYears         int      `json:"min_years"`
	PreferredDomains []string `json:"preferred_domains"`
}

// EducationCriteria 教育类别的结构化要求
type EducationCriteria struct {
	Weight          int      `json:"weight"`
	MinDegree       string   `json:"min_degree"` // high_school / associate / bachelor / master / doctorate
	PreferredMajors []string `json:"preferred_majors"`
}

// LanguagesCriteria 语言能力类别的结构化要求
type LanguagesCriteria struct {
	Weight            int      `json:"weight"`
	RequiredLanguages []string `json:"required_languages"`
}

// SoftSkillsCriteria 软技能类别的结构化要求
type SoftSkillsCriteria struct {
	Weight          int      `json:"weight"`
	PreferredSkills []string `json:"preferred_skills"`
}

// ScoringRubric 岗位的加权记分规则，固定五个类别。
// 各权重合计建议为100但不强制，权重为0的类别不参与评估。
type ScoringRubric struct {
	TechnicalSkills TechnicalSkillsCriteria `json:"technical_skills"`
	Experience      ExperienceCriteria      `json:"experience"`
	Education       EducationCriteria       `json:"education"`
	Languages       LanguagesCriteria       `json:"languages"`
	SoftSkills      SoftSkillsCriteria      `json:"soft_skills"`
}

// TotalWeight 返回各类别权重之和
func (r *ScoringRubric) TotalWeight() int {
	return r.TechnicalSkills.Weight + r.Experience.Weight + r.Education.Weight +
		r.Languages.Weight + r.SoftSkills.Weight
}

// AnalysisRequest 一次适配度评估的完整输入
type AnalysisRequest struct {
	ResumeText           string
	JobTitle             string
	JobDescription       string
	JobDescriptionDetail string // 岗位的详细JD补充，可为空
	Rubric               *ScoringRubric
	Attachment           string // HR上传时附带的备注，仅作为评估参考
}

// AnalysisResult LLM适配度评估结果。ExtractedInfo是评估时重新
// 提取的结构化个人信息，评分器未配置信息提取时为nil。
type AnalysisResult struct {
	MatchPercentage int            `json:"matchPercentage"`
	Analysis        string         `json:"analysis"`
	Strengths       []string       `json:"strengths"`
	Weaknesses      []string       `json:"weaknesses"`
	Recommendations []string       `json:"recommendations"`
	ExtractedInfo   *ExtractedInfo `json:"extractedInfo,omitempty"`
}
