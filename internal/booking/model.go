package booking

import (
	"encoding/json"
	"time"
)

type Specialty string

const (
	SpecialtyGeneralPhysician Specialty = "general-physician"
	SpecialtyCardiologist     Specialty = "cardiologist"
	SpecialtyDermatologist    Specialty = "dermatologist"
	SpecialtyOrthopedic       Specialty = "orthopedic"
	SpecialtyPediatrician     Specialty = "pediatrician"
	SpecialtyGynecologist     Specialty = "gynecologist"
	SpecialtyENT              Specialty = "ent"
	SpecialtyOphthalmologist  Specialty = "ophthalmologist"
	SpecialtyNeurologist      Specialty = "neurologist"
	SpecialtyPsychiatrist     Specialty = "psychiatrist"
)

var specialties = map[Specialty]bool{
	SpecialtyGeneralPhysician: true,
	SpecialtyCardiologist:     true,
	SpecialtyDermatologist:    true,
	SpecialtyOrthopedic:       true,
	SpecialtyPediatrician:     true,
	SpecialtyGynecologist:     true,
	SpecialtyENT:              true,
	SpecialtyOphthalmologist:  true,
	SpecialtyNeurologist:      true,
	SpecialtyPsychiatrist:     true,
}

func (s Specialty) Valid() bool {
	return specialties[s]
}

// Specialties returns every known specialty.
func Specialties() []Specialty {
	return []Specialty{
		SpecialtyGeneralPhysician,
		SpecialtyCardiologist,
		SpecialtyDermatologist,
		SpecialtyOrthopedic,
		SpecialtyPediatrician,
		SpecialtyGynecologist,
		SpecialtyENT,
		SpecialtyOphthalmologist,
		SpecialtyNeurologist,
		SpecialtyPsychiatrist,
	}
}

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
)

type Provider struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Specialty          Specialty `json:"specialty"`
	Qualifications     []string  `json:"qualifications"`
	RegistrationNumber string    `json:"registrationNumber"`
	ConsultationFee    int       `json:"consultationFee"` // INR
	HospitalID         string    `json:"hospitalId"`
	DepartmentID       string    `json:"departmentId"`
	IsActive           bool      `json:"isActive"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

type Address struct {
	Line1   string  `json:"line1"`
	Line2   *string `json:"line2,omitempty"`
	City    string  `json:"city"`
	State   string  `json:"state"`
	Pincode string  `json:"pincode"`
}

type Patient struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Mobile      string    `json:"mobile"`
	Email       *string   `json:"email,omitempty"`
	DateOfBirth string    `json:"dateOfBirth"`
	Gender      string    `json:"gender"`
	AbhaID      *string   `json:"abhaId,omitempty"` // opaque ABDM health account id
	Address     *Address  `json:"address,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Slot is a bookable [StartTime, EndTime) interval for one provider on one date.
// BookedCount is owned by the SlotRegistry; availability is always derived from it.
type Slot struct {
	ID          string `json:"id"`
	ProviderID  string `json:"doctorId"`
	Date        string `json:"date"`      // YYYY-MM-DD
	StartTime   string `json:"startTime"` // HH:mm
	EndTime     string `json:"endTime"`   // HH:mm
	MaxPatients int    `json:"maxPatients"`
	BookedCount int    `json:"bookedCount"`
}

func (s Slot) IsAvailable() bool {
	return s.BookedCount < s.MaxPatients
}

func (s Slot) Free() int {
	return s.MaxPatients - s.BookedCount
}

type slotJSON struct {
	ID          string `json:"id"`
	ProviderID  string `json:"doctorId"`
	Date        string `json:"date"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	IsAvailable bool   `json:"isAvailable"`
	MaxPatients int    `json:"maxPatients"`
	BookedCount int    `json:"bookedCount"`
}

// MarshalJSON emits isAvailable computed from the counter. It is not read back.
func (s Slot) MarshalJSON() ([]byte, error) {
	return json.Marshal(slotJSON{
		ID:          s.ID,
		ProviderID:  s.ProviderID,
		Date:        s.Date,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		IsAvailable: s.IsAvailable(),
		MaxPatients: s.MaxPatients,
		BookedCount: s.BookedCount,
	})
}

type Appointment struct {
	ID                 string        `json:"id"`
	PatientID          string        `json:"patientId"`
	ProviderID         string        `json:"doctorId"`
	SlotID             string        `json:"slotId"`
	Status             Status        `json:"status"`
	TokenNumber        *int          `json:"tokenNumber,omitempty"`
	ConsultationFee    int           `json:"consultationFee"` // snapshot at booking time
	PaymentStatus      PaymentStatus `json:"paymentStatus"`
	Notes              *string       `json:"notes,omitempty"`
	CancellationReason *string       `json:"cancellationReason,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
	UpdatedAt          time.Time     `json:"updatedAt"`
}

const (
	EventAppointmentCreated       = "APPOINTMENT_CREATED"
	EventAppointmentStatusChanged = "APPOINTMENT_STATUS_CHANGED"
)

// Event is one append-only entry of an appointment's history.
type Event struct {
	ID            string    `json:"id"`
	AppointmentID string    `json:"appointmentId"`
	Type          string    `json:"type"`
	From          *Status   `json:"from,omitempty"`
	To            Status    `json:"to"`
	Reason        *string   `json:"reason,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

type PatientSummary struct {
	Name   string `json:"name"`
	Mobile string `json:"mobile"`
}

type ProviderSummary struct {
	Name      string    `json:"name"`
	Specialty Specialty `json:"specialty"`
}

type SlotSummary struct {
	Date      string `json:"date"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
}

// AppointmentResponse is an appointment joined with display fields read at query time.
type AppointmentResponse struct {
	Appointment
	Patient  *PatientSummary  `json:"patient,omitempty"`
	Provider *ProviderSummary `json:"doctor,omitempty"`
	Slot     *SlotSummary     `json:"slot,omitempty"`
}

func strPtr(s string) *string {
	return &s
}
