package sproxy

import (
	"fmt"
)

// ApplyTopology loads device entries into the registry. A master is created
// the first time its name is mentioned and later entries with the same name
// update it. Repeated suffixes under one master refer to the same virtual.
// The writer suffix must name a virtual declared for that master.
func (r *Registry) ApplyTopology(devices []DeviceConfig) error {
	for _, device := range devices {
		master, err := r.ensureMaster(device.Name)
		if err != nil {
			return err
		}
		if device.BaudRate != 0 {
			if !ValidBaudRate(device.BaudRate) {
				return &TopologyError{Name: device.Name, Reason: fmt.Sprintf("baud rate %d", device.BaudRate), Err: ErrInvalidBaudRate}
			}
			r.Node(master).SetBaudRate(device.BaudRate)
		}
		for _, suffix := range device.Virtuals {
			if _, err := r.ensureVirtual(master, VirtualName(device.Name, suffix)); err != nil {
				return err
			}
		}
		if device.Writer != "" {
			name := VirtualName(device.Name, device.Writer)
			writer, ok := r.LookupVirtual(master, name)
			if !ok {
				return &TopologyError{Name: name, Reason: "writer is not a declared virtual of " + device.Name}
			}
			if err := r.DesignateWriter(writer); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Registry) ensureMaster(name string) (NodeID, error) {
	if id, ok := r.Lookup(name); ok {
		return id, nil
	}
	if owner, ok := r.findVirtual(name); ok {
		return NoNode, &TopologyError{Name: name, Reason: "already declared as virtual of " + r.Node(owner).name, Err: ErrDuplicateName}
	}
	id, err := r.CreateNode(name, RoleMaster)
	if err != nil {
		return NoNode, err
	}
	if err := r.AddMaster(id); err != nil {
		return NoNode, err
	}
	return id, nil
}

func (r *Registry) ensureVirtual(master NodeID, name string) (NodeID, error) {
	if id, ok := r.LookupVirtual(master, name); ok {
		return id, nil
	}
	if _, ok := r.Lookup(name); ok {
		return NoNode, &TopologyError{Name: name, Reason: "already declared as master", Err: ErrDuplicateName}
	}
	if owner, ok := r.findVirtual(name); ok {
		return NoNode, &TopologyError{Name: name, Reason: "already declared as virtual of " + r.Node(owner).name, Err: ErrDuplicateName}
	}
	id, err := r.CreateNode(name, RoleVirtual)
	if err != nil {
		return NoNode, err
	}
	if err := r.Attach(master, id); err != nil {
		r.Release(id)
		return NoNode, err
	}
	return id, nil
}

// findVirtual returns the master owning a virtual called name.
func (r *Registry) findVirtual(name string) (NodeID, bool) {
	for _, mid := range r.masters {
		if _, ok := r.LookupVirtual(mid, name); ok {
			return mid, true
		}
	}
	return NoNode, false
}
