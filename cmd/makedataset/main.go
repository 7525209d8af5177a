// Command makedataset generates synthetic hiring data: a canonical jobs CSV
// for the rebuild path, a candidates CSV for exercising the ingestion path,
// and, optionally, a JSONL set of resume-versus-job evaluation examples for
// model tuning.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"strconv"
	"strings"
)

var skillsPool = []string{
	// Programming
	"Python", "Java", "C++", "C#", "JavaScript", "TypeScript", "Go", "Rust", "Ruby", "PHP",
	// Web
	"React", "Angular", "Vue.js", "Next.js", "HTML", "CSS", "TailwindCSS", "Bootstrap",
	// Backend
	"Node.js", "Express.js", "Spring Boot", "Django", "Flask", "FastAPI", "GraphQL",
	// Databases
	"SQL", "PostgreSQL", "MySQL", "MongoDB", "Redis", "Cassandra", "Elasticsearch",
	// DevOps / Cloud
	"Docker", "Kubernetes", "AWS", "Azure", "GCP", "Terraform", "Ansible", "Jenkins", "GitHub Actions",
	// Data / ML
	"TensorFlow", "PyTorch", "Scikit-learn", "Pandas", "NumPy", "Spark", "Kafka", "Airflow",
	// Other
	"Linux", "Git", "Tableau", "PowerBI",
}

var companiesPool = []string{
	"TechCorp", "DataWorks", "Initech", "Globex", "CloudNine", "ByteForge",
	"NorthStack", "Quantica", "Hyperion Labs", "Vertex Systems",
}

var namesPool = []string{
	"Alice Carter", "Ben Okafor", "Carla Mendes", "Daniel Kim", "Elena Petrova",
	"Farid Haddad", "Grace Lin", "Henry Walsh", "Ines Moreau", "Jonas Berg",
	"Kavya Rao", "Liam Doyle", "Mona Aziz", "Nikolai Orlov", "Priya Shah",
}

var titlesPool = []string{
	"Backend Engineer", "Frontend Engineer", "Data Analyst", "Data Engineer",
	"DevOps Engineer", "Machine Learning Engineer", "Full Stack Developer",
	"Platform Engineer", "Site Reliability Engineer", "Software Engineer",
}

func main() {
	jobs := flag.Int("jobs", 50, "number of job rows to generate")
	out := flag.String("out", "jobs.csv", "output CSV path")
	candidates := flag.Int("candidates", 0, "number of candidate rows to generate (0 = skip)")
	candidatesOut := flag.String("candidates-out", "candidates.csv", "candidates CSV path")
	examples := flag.Int("examples", 0, "number of JSONL tuning examples (0 = skip)")
	jsonlOut := flag.String("jsonl", "dataset.jsonl", "output JSONL path")
	seed := flag.Int64("seed", 42, "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	if err := writeJobsCSV(*out, *jobs, rng); err != nil {
		log.Fatalf("write jobs csv: %v", err)
	}
	log.Printf("wrote %d jobs to %s", *jobs, *out)

	if *candidates > 0 {
		if err := writeCandidatesCSV(*candidatesOut, *candidates, rng); err != nil {
			log.Fatalf("write candidates csv: %v", err)
		}
		log.Printf("wrote %d candidates to %s", *candidates, *candidatesOut)
	}

	if *examples > 0 {
		if err := writeExamples(*jsonlOut, *examples, rng); err != nil {
			log.Fatalf("write examples: %v", err)
		}
		log.Printf("wrote %d examples to %s", *examples, *jsonlOut)
	}
}

func writeJobsCSV(path string, n int, rng *rand.Rand) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"job_id", "title", "company", "required_skills"}); err != nil {
		return err
	}
	for i := 1; i <= n; i++ {
		row := []string{
			strconv.Itoa(i),
			titlesPool[rng.Intn(len(titlesPool))],
			companiesPool[rng.Intn(len(companiesPool))],
			strings.Join(sample(rng, skillsPool, 3+rng.Intn(4)), ", "),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeCandidatesCSV(path string, n int, rng *rand.Rand) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"candidate_id", "name", "skills"}); err != nil {
		return err
	}
	for i := 1; i <= n; i++ {
		row := []string{
			fmt.Sprintf("A%d", i),
			namesPool[rng.Intn(len(namesPool))],
			strings.Join(sample(rng, skillsPool, 3+rng.Intn(4)), ", "),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type example struct {
	Messages []message `json:"messages"`
}

func writeExamples(path string, n int, rng *rand.Rand) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for i := 0; i < n; i++ {
		if err := enc.Encode(makeExample(rng)); err != nil {
			return err
		}
	}
	return nil
}

func makeExample(rng *rand.Rand) example {
	resumeSkills := sample(rng, skillsPool, 3+rng.Intn(4))
	jobSkills := sample(rng, skillsPool, 3+rng.Intn(4))

	have := make(map[string]bool, len(resumeSkills))
	for _, s := range resumeSkills {
		have[s] = true
	}
	var matched, missing []string
	for _, s := range jobSkills {
		if have[s] {
			matched = append(matched, s)
		} else {
			missing = append(missing, s)
		}
	}
	score := len(matched) * 100 / max(1, len(jobSkills))

	return example{Messages: []message{
		{
			Role:    "system",
			Content: "You are an expert recruiter assistant that evaluates resumes against job descriptions.",
		},
		{
			Role: "user",
			Content: fmt.Sprintf("Resume Skills: %s\nJob Skills: %s\nJob Description: Looking for an engineer with strong skills in %s.",
				strings.Join(resumeSkills, ", "), strings.Join(jobSkills, ", "), strings.Join(jobSkills, ", ")),
		},
		{
			Role: "assistant",
			Content: fmt.Sprintf("Match Score: %d%%\nMatched Skills: %s\nMissing Skills: %s",
				score, orNone(matched), orNone(missing)),
		},
	}}
}

func orNone(ss []string) string {
	if len(ss) == 0 {
		return "None"
	}
	return strings.Join(ss, ", ")
}

func sample(rng *rand.Rand, pool []string, k int) []string {
	idx := rng.Perm(len(pool))[:k]
	out := make([]string, k)
	for i, j := range idx {
		out[i] = pool[j]
	}
	return out
}
