package models

// Clinic is one branch in the clinic directory
type Clinic struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	City    string `json:"city"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
	Email   string `json:"email"`
	Hours   string `json:"hours"`
	MapURL  string `json:"map_url"`
}

// Label is the "Branch, City" string the appointment form submits as location
func (c Clinic) Label() string {
	return c.Name + ", " + c.City
}

const clinicHours = "Mon–Sat: 9AM – 8PM"

// Treatments offered on the appointment form
var Treatments = []string{
	"General Consultation",
	"Teeth Whitening",
	"Invisalign / Braces",
	"Dental Implants",
	"Root Canal Therapy",
	"Cosmetic Veneers",
	"Emergency Dental Care",
}

// Clinics is the clinic directory shown on the site and in visitor emails
var Clinics = []Clinic{
	{
		ID:      "kondapur",
		Name:    "Kondapur",
		City:    "Hyderabad",
		Address: "Block 1, DivyaSree Omega, Survey No 13, Kothaguda, Telangana 500084",
		Phone:   "+91 903 006 2369",
		Email:   "kondapurndc@gmail.com",
		Hours:   clinicHours,
		MapURL:  "https://maps.app.goo.gl/B7Hp29dSk2G9iMMD7",
	},
	{
		ID:      "vanasthalipuram",
		Name:    "Vanasthalipuram",
		City:    "Hyderabad",
		Address: "2nd Floor, SANDEEP VIHAR, Sy No. 60, Vanasthalipuram, Hyderabad 500070",
		Phone:   "+91 903 005 2369",
		Email:   "hydndc@gmail.com",
		Hours:   clinicHours,
		MapURL:  "https://maps.app.goo.gl/YV9W67w3Fm2S8C7v7",
	},
	{
		ID:      "sarjapur",
		Name:    "Sarjapur",
		City:    "Bengaluru",
		Address: "3rd Floor, Gurumurthy Reddy Complex, Sarjapur–Marathahalli Rd, Bengaluru 560035",
		Phone:   "+91 923 695 2369",
		Email:   "hydndc@gmail.com",
		Hours:   clinicHours,
		MapURL:  "https://maps.app.goo.gl/YV9W67w3Fm2S8C7v7",
	},
	{
		ID:      "whitefield",
		Name:    "Whitefield",
		City:    "Bengaluru",
		Address: "ITPL Main Rd, near Hope Farm Circle, Whitefield, Bengaluru 560066",
		Phone:   "+91 923 888 2369",
		Email:   "whitefieldndc@gmail.com",
		Hours:   clinicHours,
		MapURL:  "https://maps.app.goo.gl/YV9W67w3Fm2S8C7v7",
	},
}

// FindClinic looks a clinic up by id or by its form label
func FindClinic(key string) (Clinic, bool) {
	for _, c := range Clinics {
		if c.ID == key || c.Label() == key {
			return c, true
		}
	}
	return Clinic{}, false
}
