package service

// Requester identifies who is calling a workflow operation. Admins pass no
// ownership filter.
type Requester struct {
	CustomerID string
	Admin      bool
}

func AdminRequester() Requester {
	return Requester{Admin: true}
}

func CustomerRequester(customerID string) Requester {
	return Requester{CustomerID: customerID}
}

func (r Requester) CanAccess(ownerID string) bool {
	return r.Admin || (r.CustomerID != "" && r.CustomerID == ownerID)
}
