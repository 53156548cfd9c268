package v1

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hrygo/fitcoach/ai/pipeline"
	"github.com/hrygo/fitcoach/store"
)

// chatDateLayout is the date format of the chat question header.
const chatDateLayout = "02-01-2006"

// profileHeader introduces the user to the model. Every pipeline message starts with it.
func profileHeader(date string, p *store.UserProfile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Today is %s. The user details are:\n", date)
	fmt.Fprintf(&b, "- Name: %s\n", p.Name)
	fmt.Fprintf(&b, "- Age: %s years old\n", p.Age)
	fmt.Fprintf(&b, "- Height: %s meters\n", p.Height)
	fmt.Fprintf(&b, "- Gender: %s\n", p.Gender)
	fmt.Fprintf(&b, "- ID: %s\n\n", p.ID)
	return b.String()
}

func chatQuestion(date string, p *store.UserProfile, message string) string {
	return profileHeader(date, p) + "This is the users question: " + message
}

func recommendationsQuestion(date string, p *store.UserProfile) string {
	return profileHeader(date, p) +
		"Analyze their profile, their goals AND todays data and provide **3 actionable fitness recommendations** for today.\n" +
		"Format the response strictly in JSON!"
}

func newGoalQuestion(date string, p *store.UserProfile, metric string, currentGoal int, average float64) string {
	var b strings.Builder
	b.WriteString(profileHeader(date, p))
	fmt.Fprintf(&b, "The user wants a new goal for %s. The current goal is %d per day.\n", metric, currentGoal)
	if average > 0 {
		fmt.Fprintf(&b, "The user had an average of %s last week!\n", strconv.FormatFloat(average, 'f', -1, 64))
	}
	fmt.Fprintf(&b, "\nBased on their profile, fitness level, LAST WEEKS DATA and progress, suggest a **realistic and motivating new goal** for %s.\n", metric)
	b.WriteString("Also think about 'general health benefits'\n")
	b.WriteString("Format the response strictly in JSON!")
	return b.String()
}

func suggestedQuestionsQuestion(date string, p *store.UserProfile) string {
	return profileHeader(date, p) +
		"Based on their fitness level and possible needs, suggest **3 meaningful questions** " +
		"they can ask the chatbot about their health, fitness, progress...\n\n" +
		"Format the response strictly in JSON!"
}

func detailQuestion(date string, p *store.UserProfile, metric string, subtype pipeline.DetailSubtype) string {
	var b strings.Builder
	b.WriteString(profileHeader(date, p))
	fmt.Fprintf(&b, "The user is focusing on the %s metric today.\n", metric)
	fmt.Fprintf(&b, "Provide a relevant **%s** related to %s that is useful for the user.\n", subtype, metric)
	b.WriteString("This can be about today, a whole week, month, a few days... but not about the future!\n\n")
	b.WriteString("Format the response strictly in JSON!")
	return b.String()
}
