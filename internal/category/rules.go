package category

// DefaultRules are the scored keyword rules. Earlier rules win ties.
var DefaultRules = []Rule{
	{Category: "Programming", Keywords: []string{
		"python", "javascript", "java", "php", "c++", "c#", "ruby", "swift", "kotlin", "golang",
		"sql", "nosql", "programming", "coding", "developer", "software", "algorithm",
		"data structure", "api", "framework", "git", "github", "debugging", "testing", "devops",
	}},
	{Category: "Web Development", Keywords: []string{
		"web", "website", "html", "css", "react", "angular", "vue", "node", "nodejs", "express",
		"django", "flask", "bootstrap", "jquery", "wordpress", "frontend", "backend", "fullstack",
	}},
	{Category: "Data Science", Keywords: []string{
		"data", "analytics", "machine learning", "ml", "ai", "artificial intelligence",
		"chatgpt", "pandas", "numpy", "tensorflow", "pytorch", "statistics", "visualization",
		"big data", "deep learning",
	}},
	{Category: "Business", Keywords: []string{
		"business", "management", "entrepreneurship", "startup", "finance", "accounting",
		"economics", "sales", "leadership", "strategy", "project management", "excel",
	}},
	{Category: "Marketing", Keywords: []string{
		"marketing", "digital marketing", "seo", "social media", "advertising",
		"email marketing", "affiliate", "copywriting", "facebook ads", "instagram", "youtube",
	}},
	{Category: "Design", Keywords: []string{
		"design", "graphic", "ui", "ux", "photoshop", "illustrator", "figma", "canva",
		"logo", "typography", "wireframe", "adobe", "drawing",
	}},
	{Category: "Photography", Keywords: []string{
		"photography", "photo", "camera", "lightroom", "portrait", "lighting",
	}},
	{Category: "Music", Keywords: []string{
		"music", "audio", "mixing", "mastering", "guitar", "piano", "singing", "music theory",
	}},
	{Category: "Languages", Keywords: []string{
		"english", "spanish", "french", "german", "chinese", "japanese", "arabic",
		"grammar", "vocabulary", "pronunciation", "ielts", "toefl",
	}},
	{Category: "Health & Fitness", Keywords: []string{
		"health", "fitness", "workout", "yoga", "meditation", "nutrition", "diet",
		"wellness", "mental health", "mindfulness", "stress", "anxiety",
	}},
	{Category: "Technology", Keywords: []string{
		"technology", "computer", "hardware", "network", "networking", "security",
		"cybersecurity", "cloud", "aws", "azure", "linux", "server", "database", "blockchain",
	}},
}

// FallbackRules map generic words to a category, first match wins.
var FallbackRules = []Rule{
	{Category: "Education", Keywords: []string{
		"course", "complete", "guide", "beginner", "beginners", "advanced", "master", "masterclass",
		"learn", "tutorial", "training", "certification",
	}},
	{Category: "Business", Keywords: []string{"professional", "career", "money", "income", "freelance", "freelancing"}},
	{Category: "Technology", Keywords: []string{"online", "digital", "app", "mobile", "game"}},
	{Category: "Design", Keywords: []string{"creative", "art", "video", "animation"}},
}
